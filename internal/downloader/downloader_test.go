package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rookbot/internal/config"
	"rookbot/internal/store"
)

func TestMain(m *testing.M) {
	// the package logs through the global logger
	config.Load()
	os.Exit(m.Run())
}

// fakeGit scripts the git invocations a Repo makes.
type fakeGit struct {
	head      string
	known     map[string]bool            // revisions git recognizes
	ancestors map[string]bool            // "old new" pairs where old is an ancestor of new
	diffs     map[string]string          // "old new" -> newline-separated changed paths
	pullTo    string                     // commit HEAD moves to on pull
	failPull  bool
	failPip   bool
	pipCalls  [][]string
	checkouts []string
	diffCalls int
}

func (f *fakeGit) run(_ context.Context, _, name string, args ...string) (string, error) {
	if name != "git" {
		f.pipCalls = append(f.pipCalls, args)
		if f.failPip {
			return "", &commandError{code: 1, output: "no matching distribution"}
		}
		return "", nil
	}
	switch args[0] {
	case "rev-parse":
		if args[1] == "--abbrev-ref" {
			return "main\n", nil
		}
		return f.head + "\n", nil
	case "checkout":
		f.checkouts = append(f.checkouts, args[1])
		if f.known != nil && !f.known[args[1]] && args[1] != "main" {
			return "", &commandError{code: 1, output: "pathspec did not match"}
		}
		return "", nil
	case "pull":
		if f.failPull {
			return "", &commandError{code: 1, output: "could not resolve host"}
		}
		if f.pullTo != "" {
			f.head = f.pullTo
		}
		return "", nil
	case "merge-base":
		old, newer := args[2], args[3]
		if f.known != nil && !f.known[old] {
			return "", &commandError{code: 128, output: "fatal: Not a valid commit name"}
		}
		if f.ancestors[old+" "+newer] {
			return "", nil
		}
		return "", &commandError{code: 1}
	case "diff":
		f.diffCalls++
		return f.diffs[args[2]+" "+args[3]], nil
	}
	return "", fmt.Errorf("unexpected git args: %v", args)
}

// writeModule lays a module directory with an info.json down in dir.
func writeModule(t *testing.T, dir, name string, info moduleInfo) {
	t.Helper()
	modDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(modDir, infoFileName), raw, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "module.txt"), []byte(name), 0o644))
}

func writeEmptyDir(dir, name string) error {
	return os.MkdirAll(filepath.Join(dir, name), 0o755)
}

func newFakeRepo(t *testing.T, name, head string, git *fakeGit) *Repo {
	t.Helper()
	git.head = head
	repo := newRepo(name, "https://example.invalid/"+name+".git", "main", t.TempDir())
	repo.run = git.run
	repo.commit = head
	return repo
}

func newTestDownloader(t *testing.T, repos ...*Repo) *Downloader {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	rm := NewRepoManager(s, t.TempDir())
	for _, r := range repos {
		rm.repos[r.Name()] = r
	}
	d, err := New(s, rm, t.TempDir(), "1.0.0")
	require.NoError(t, err)
	return d
}

func TestRegistryRoundTrip(t *testing.T) {
	git := &fakeGit{}
	repo := newFakeRepo(t, "community", "c2", git)
	d := newTestDownloader(t, repo)

	mod := &InstalledModule{Installable: Installable{
		Repo: repo, RepoName: "community", Name: "karma", Commit: "c1", Type: ModuleTypeCog,
	}}
	require.NoError(t, d.saveInstalled([]*InstalledModule{mod}))

	cogs, err := d.InstalledCogs()
	require.NoError(t, err)
	require.Len(t, cogs, 1)
	assert.Equal(t, "karma", cogs[0].Name)
	assert.Equal(t, "c1", cogs[0].Commit)
	assert.Same(t, repo, cogs[0].Repo, "loading reattaches the repo handle")
	assert.Equal(t, ModuleTypeCog, cogs[0].Type)

	_, ok, err := d.IsInstalled("karma")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, d.removeInstalled(cogs))
	cogs, err = d.InstalledCogs()
	require.NoError(t, err)
	assert.Empty(t, cogs)
}

func TestInstalledCogWithRemovedRepo(t *testing.T) {
	git := &fakeGit{}
	repo := newFakeRepo(t, "community", "c2", git)
	d := newTestDownloader(t) // repo not registered with the manager

	mod := &InstalledModule{Installable: Installable{
		Repo: repo, RepoName: "community", Name: "karma", Commit: "c1", Type: ModuleTypeCog,
	}}
	require.NoError(t, d.saveInstalled([]*InstalledModule{mod}))

	cogs, err := d.InstalledCogs()
	require.NoError(t, err)
	require.Len(t, cogs, 1)
	assert.Nil(t, cogs[0].Repo)
}

func TestSetPinned(t *testing.T) {
	git := &fakeGit{}
	repo := newFakeRepo(t, "community", "c2", git)
	d := newTestDownloader(t, repo)

	mod := &InstalledModule{Installable: Installable{
		Repo: repo, RepoName: "community", Name: "karma", Commit: "c1", Type: ModuleTypeCog,
	}}
	require.NoError(t, d.saveInstalled([]*InstalledModule{mod}))

	require.NoError(t, d.SetPinned("karma", true))
	got, ok, err := d.IsInstalled("karma")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Pinned)

	assert.Error(t, d.SetPinned("ghost", true))
}

func TestUninstallCogs(t *testing.T) {
	git := &fakeGit{}
	repo := newFakeRepo(t, "community", "c2", git)
	d := newTestDownloader(t, repo)

	mod := &InstalledModule{Installable: Installable{
		Repo: repo, RepoName: "community", Name: "karma", Commit: "c1", Type: ModuleTypeCog,
	}}
	require.NoError(t, d.saveInstalled([]*InstalledModule{mod}))
	require.NoError(t, os.MkdirAll(filepath.Join(d.CogPath(), "karma"), 0o755))

	removed, notInstalled, err := d.UninstallCogs([]string{"karma", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"karma"}, removed)
	assert.Equal(t, []string{"ghost"}, notInstalled)

	_, statErr := os.Stat(filepath.Join(d.CogPath(), "karma"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestModuleList(t *testing.T) {
	mods := []*InstalledModule{
		{Installable: Installable{RepoName: "community", Name: "karma", Commit: "0123456789abcdef"}},
		{Installable: Installable{RepoName: "community", Name: "tags", Commit: "c2"}, Pinned: true},
	}
	out := ModuleList(mods)
	assert.Contains(t, out, "community/karma (01234567)")
	assert.True(t, strings.Contains(out, "community/tags (c2) [pinned]"))
}
