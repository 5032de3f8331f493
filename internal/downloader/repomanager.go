package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"rookbot/internal/config"
	"rookbot/internal/store"
)

// repoEntry is the persisted form of a tracked repo.
type repoEntry struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

// RepoManager tracks the repos modules can be installed from. The set of
// repos is persisted in the config store; the clones live under reposDir.
type RepoManager struct {
	mu       sync.RWMutex
	reposDir string
	repos    map[string]*Repo
	conf     *store.Conf
}

func NewRepoManager(s *store.Store, reposDir string) *RepoManager {
	conf := s.GetConf("RepoManager")
	conf.RegisterGlobal(map[string]interface{}{
		"repos": map[string]repoEntry{},
	})
	return &RepoManager{
		reposDir: reposDir,
		repos:    make(map[string]*Repo),
		conf:     conf,
	}
}

// Initialize rebuilds Repo handles from the persisted set, recloning any
// repo whose directory went missing.
func (m *RepoManager) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(m.reposDir, 0o755); err != nil {
		return fmt.Errorf("creating repos dir: %w", err)
	}

	entries := map[string]repoEntry{}
	if err := m.conf.Global().Get("repos", &entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, entry := range entries {
		repo := newRepo(name, entry.URL, entry.Branch, filepath.Join(m.reposDir, name))
		if err := repo.refreshCommit(ctx); err != nil {
			config.Logger.Warnf("Repo %s has no usable clone, recloning: %v", name, err)
			_ = os.RemoveAll(repo.Path())
			if err := repo.Clone(ctx); err != nil {
				config.Logger.Errorf("Failed to reclone repo %s: %v", name, err)
				continue
			}
		}
		m.repos[name] = repo
	}
	return nil
}

// Add clones a new repo and persists it.
func (m *RepoManager) Add(ctx context.Context, name, url, branch string) (*Repo, error) {
	if !repoNamePattern.MatchString(name) {
		return nil, fmt.Errorf("repo names may only contain letters, numbers, underscores and hyphens: %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repos[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExistingRepo, name)
	}

	repo := newRepo(name, url, branch, filepath.Join(m.reposDir, name))
	if err := repo.Clone(ctx); err != nil {
		_ = os.RemoveAll(repo.Path())
		return nil, err
	}

	m.repos[name] = repo
	if err := m.persist(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Remove forgets a repo and deletes its clone.
func (m *RepoManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, ok := m.repos[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRepo, name)
	}
	delete(m.repos, name)
	if err := os.RemoveAll(repo.Path()); err != nil {
		return fmt.Errorf("deleting clone of %s: %w", name, err)
	}
	return m.persist()
}

// Get looks a repo up by name.
func (m *RepoManager) Get(name string) (*Repo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	repo, ok := m.repos[name]
	return repo, ok
}

// All returns the tracked repos sorted by name.
func (m *RepoManager) All() []*Repo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	repos := make([]*Repo, 0, len(m.repos))
	for _, r := range m.repos {
		repos = append(repos, r)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name() < repos[j].Name() })
	return repos
}

// UpdateRepos pulls the given repos (all tracked repos when nil)
// concurrently. It returns the repos whose commit moved and the names of
// repos that failed to update.
func (m *RepoManager) UpdateRepos(ctx context.Context, repos []*Repo) (updated []*Repo, failed []string, err error) {
	if repos == nil {
		repos = m.All()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			oldCommit, newCommit, updateErr := repo.Update(gctx)
			mu.Lock()
			defer mu.Unlock()
			if updateErr != nil {
				config.Logger.Errorf("Failed to update repo %s: %v", repo.Name(), updateErr)
				failed = append(failed, repo.Name())
				return nil
			}
			if oldCommit != newCommit {
				updated = append(updated, repo)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(failed)
	return updated, failed, nil
}

// persist saves the repo set. Callers must hold m.mu.
func (m *RepoManager) persist() error {
	return m.conf.Global().Update("repos", func(json.RawMessage) (interface{}, error) {
		entries := make(map[string]repoEntry, len(m.repos))
		for name, repo := range m.repos {
			entries[name] = repoEntry{URL: repo.URL(), Branch: repo.Branch()}
		}
		return entries, nil
	})
}
