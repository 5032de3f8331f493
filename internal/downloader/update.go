package downloader

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// AvailableUpdates decides which of the given installed cogs (and the shared
// libraries of their repos) need reinstalling, assuming their repos were
// already pulled.
//
// Modules whose recorded commit matches the repo commit are current. The rest
// are batched by (repo, recorded commit) so each distinct commit pair costs a
// single diff: modules absent from the diff only get their recorded commit
// bumped in the registry, modules present in it are returned for reinstall.
// Cogs with no recorded commit, or a commit the repo no longer knows, fall
// back to whatever the repo currently ships for that module. Pinned cogs are
// left out of the check entirely: they are never reported and their recorded
// commits are never bumped.
func (d *Downloader) AvailableUpdates(ctx context.Context, cogs []*InstalledModule) (cogsToUpdate, libsToUpdate []*Installable, err error) {
	unpinned := make([]*InstalledModule, 0, len(cogs))
	for _, c := range cogs {
		if !c.Pinned {
			unpinned = append(unpinned, c)
		}
	}
	cogs = unpinned

	repos := map[string]*Repo{}
	for _, c := range cogs {
		if c.Repo != nil {
			repos[c.Repo.Name()] = c.Repo
		}
	}

	installedLibs, err := d.InstalledLibraries()
	if err != nil {
		return nil, nil, err
	}

	// moduleKey dedupes modules across the candidate and result sets.
	moduleKey := func(repoName, name string) string { return repoName + "/" + name }

	candidates := map[string]*InstalledModule{}
	outCogs := map[string]*Installable{}
	outLibs := map[string]*Installable{}

	// Shared libraries of every repo in play: reinstall missing ones
	// outright, diff-check the rest.
	for _, repo := range repos {
		libs, err := repo.AvailableLibraries()
		if err != nil {
			return nil, nil, err
		}
		for _, lib := range libs {
			key := moduleKey(lib.RepoName, lib.Name)
			if inst := findModule(installedLibs, lib.RepoName, lib.Name); inst != nil {
				candidates[key] = inst
			} else {
				outLibs[key] = lib
			}
		}
	}

	for _, c := range cogs {
		if c.Repo == nil {
			// repo was removed, nothing to check against
			continue
		}
		key := moduleKey(c.RepoName, c.Name)
		if c.Commit != "" {
			candidates[key] = c
			continue
		}
		// No commit recorded for this install, take whatever the repo ships now.
		last, err := c.Repo.LastModuleOccurrence(c.Name)
		if err != nil {
			return nil, nil, err
		}
		if last != nil && !last.Disabled {
			outCogs[key] = last
		}
	}

	// Batch diff requests by (repo, recorded commit) so no commit pair is
	// diffed twice.
	type diffKey struct {
		repo      *Repo
		oldCommit string
	}
	batches := map[diffKey][]*InstalledModule{}

	for _, mod := range candidates {
		if mod.Repo.Commit() == mod.Commit {
			continue
		}
		ancestor, err := mod.Repo.IsAncestor(ctx, mod.Commit, mod.Repo.Commit())
		if errors.Is(err, ErrUnknownRevision) {
			// recorded commit is gone (history rewrite); reinstall from
			// whatever the repo currently ships
			last, lerr := mod.Repo.LastModuleOccurrence(mod.Name)
			if lerr != nil {
				return nil, nil, lerr
			}
			if last == nil || last.Disabled {
				continue
			}
			key := moduleKey(last.RepoName, last.Name)
			if last.Type == ModuleTypeSharedLibrary {
				outLibs[key] = last
			} else {
				outCogs[key] = last
			}
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if ancestor {
			k := diffKey{repo: mod.Repo, oldCommit: mod.Commit}
			batches[k] = append(batches[k], mod)
		}
	}

	var commitBumps []*InstalledModule
	for k, mods := range batches {
		modified, err := k.repo.ModifiedModules(ctx, k.oldCommit, k.repo.Commit())
		if err != nil {
			return nil, nil, err
		}
		modifiedByName := map[string]*Installable{}
		for _, m := range modified {
			modifiedByName[m.Name] = m
		}
		for _, mod := range mods {
			m, ok := modifiedByName[mod.Name]
			if !ok {
				// untouched between the two commits, just advance the
				// recorded commit
				mod.Commit = k.repo.Commit()
				commitBumps = append(commitBumps, mod)
				continue
			}
			key := moduleKey(m.RepoName, m.Name)
			if m.Type == ModuleTypeSharedLibrary {
				outLibs[key] = m
			} else if !m.Disabled {
				outCogs[key] = m
			}
		}
	}

	if len(commitBumps) > 0 {
		if err := d.saveInstalled(commitBumps); err != nil {
			return nil, nil, fmt.Errorf("bumping commits: %w", err)
		}
	}

	return sortedModules(outCogs), sortedModules(outLibs), nil
}

func findModule(modules []*InstalledModule, repoName, name string) *InstalledModule {
	for _, m := range modules {
		if m.RepoName == repoName && m.Name == name {
			return m
		}
	}
	return nil
}

func sortedModules(set map[string]*Installable) []*Installable {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Installable, 0, len(keys))
	for _, k := range keys {
		out = append(out, set[k])
	}
	return out
}

// UpdateResult summarizes one update run.
type UpdateResult struct {
	UpdatedCogs        []string
	UpdatedLibraries   []string
	FailedCogs         []string
	FailedLibraries    []string
	FailedRepos        []string
	FailedRequirements []string
}

// Update runs the whole pipeline for the given installed cogs (all
// unpinned installed cogs when nil): pull repos, reconcile, install
// requirements, reinstall changed modules, record the result.
func (d *Downloader) Update(ctx context.Context, cogs []*InstalledModule) (*UpdateResult, error) {
	if cogs == nil {
		all, err := d.InstalledCogs()
		if err != nil {
			return nil, err
		}
		cogs = all
	}

	checkable := make([]*InstalledModule, 0, len(cogs))
	repoSet := map[string]*Repo{}
	for _, c := range cogs {
		if c.Repo == nil || c.Pinned {
			continue
		}
		checkable = append(checkable, c)
		repoSet[c.Repo.Name()] = c.Repo
	}
	repos := make([]*Repo, 0, len(repoSet))
	for _, r := range repoSet {
		repos = append(repos, r)
	}

	result := &UpdateResult{}
	if len(repos) > 0 {
		_, failed, err := d.repos.UpdateRepos(ctx, repos)
		if err != nil {
			return nil, err
		}
		result.FailedRepos = failed
		if len(failed) > 0 {
			failedSet := map[string]bool{}
			for _, name := range failed {
				failedSet[name] = true
			}
			kept := checkable[:0]
			for _, c := range checkable {
				if !failedSet[c.RepoName] {
					kept = append(kept, c)
				}
			}
			checkable = kept
		}
	}

	cogsToUpdate, libsToUpdate, err := d.AvailableUpdates(ctx, checkable)
	if err != nil {
		return nil, err
	}

	// Requirements go in before any module files are touched; a failed
	// requirement aborts the run so no cog ends up half updated.
	result.FailedRequirements = d.InstallRequirements(ctx, append(append([]*Installable{}, cogsToUpdate...), libsToUpdate...))
	if len(result.FailedRequirements) > 0 {
		return result, nil
	}

	installedCogs, failedCogs, err := d.InstallCogs(ctx, cogsToUpdate)
	if err != nil {
		return nil, err
	}
	installedLibs, failedLibs, err := d.ReinstallLibraries(ctx, libsToUpdate)
	if err != nil {
		return nil, err
	}

	if err := d.saveInstalled(append(installedCogs, installedLibs...)); err != nil {
		return nil, err
	}

	for _, m := range installedCogs {
		result.UpdatedCogs = append(result.UpdatedCogs, m.Name)
	}
	for _, m := range installedLibs {
		result.UpdatedLibraries = append(result.UpdatedLibraries, m.Name)
	}
	for _, m := range failedCogs {
		result.FailedCogs = append(result.FailedCogs, m.Name)
	}
	for _, m := range failedLibs {
		result.FailedLibraries = append(result.FailedLibraries, m.Name)
	}
	return result, nil
}
