package downloader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rookbot/internal/config"
)

// InstallRequirements installs the deduplicated requirements of the given
// modules into the shared lib dir, returning the ones that failed.
func (d *Downloader) InstallRequirements(ctx context.Context, modules []*Installable) []string {
	seen := map[string]*Repo{}
	for _, m := range modules {
		for _, req := range m.Requirements {
			if _, ok := seen[req]; !ok {
				seen[req] = m.Repo
			}
		}
	}

	reqs := make([]string, 0, len(seen))
	for req := range seen {
		reqs = append(reqs, req)
	}
	sort.Strings(reqs)

	var failed []string
	for _, req := range reqs {
		if err := seen[req].InstallRawRequirements(ctx, []string{req}, d.libPath); err != nil {
			config.Logger.Errorf("Failed to install requirement %s: %v", req, err)
			failed = append(failed, req)
		}
	}
	return failed
}

// InstallCogs copies the given cogs into the cog install path. Cogs are
// grouped per repo and per commit so every needed commit is checked out
// exactly once; each repo is restored to its pre-install commit afterwards,
// also when a checkout or copy fails.
func (d *Downloader) InstallCogs(ctx context.Context, cogs []*Installable) (installed []*InstalledModule, failed []*Installable, err error) {
	return d.installModules(ctx, cogs, d.cogPath)
}

// ReinstallLibraries copies shared libraries into the lib path, used when
// updating.
func (d *Downloader) ReinstallLibraries(ctx context.Context, libs []*Installable) (installed []*InstalledModule, failed []*Installable, err error) {
	return d.installModules(ctx, libs, d.libPath)
}

func (d *Downloader) installModules(ctx context.Context, modules []*Installable, target string) (installed []*InstalledModule, failed []*Installable, err error) {
	type batch struct {
		repo     *Repo
		byCommit map[string][]*Installable
	}
	batches := map[string]*batch{}
	for _, m := range modules {
		b, ok := batches[m.RepoName]
		if !ok {
			b = &batch{repo: m.Repo, byCommit: map[string][]*Installable{}}
			batches[m.RepoName] = b
		}
		b.byCommit[m.Commit] = append(b.byCommit[m.Commit], m)
	}

	for _, b := range batches {
		exitCommit := b.repo.Commit()
		for commit, mods := range b.byCommit {
			if cerr := b.repo.Checkout(ctx, commit); cerr != nil {
				config.Logger.Errorf("Failed to check out %s in repo %s: %v", commit, b.repo.Name(), cerr)
				failed = append(failed, mods...)
				continue
			}
			for _, m := range mods {
				if cerr := copyModule(m.Path(), filepath.Join(target, m.Name)); cerr != nil {
					config.Logger.Errorf("Failed to copy module %s: %v", m.Name, cerr)
					failed = append(failed, m)
					continue
				}
				installed = append(installed, installedFrom(m))
			}
		}
		if cerr := b.repo.Checkout(ctx, exitCommit); cerr != nil {
			return installed, failed, fmt.Errorf("restoring repo %s to %s: %w", b.repo.Name(), exitCommit, cerr)
		}
	}

	sort.Slice(installed, func(i, j int) bool { return installed[i].Name < installed[j].Name })
	sort.Slice(failed, func(i, j int) bool { return failed[i].Name < failed[j].Name })
	return installed, failed, nil
}

// InstallResult reports what happened to each requested cog name during an
// install.
type InstallResult struct {
	Installed          []*InstalledModule
	Failed             []string
	Unavailable        []string
	AlreadyInstalled   []string
	NameConflicts      []string
	WrongVersion       []string
	FailedRequirements []string
}

// InstallNewCogs installs the named cogs from a repo: filters names that are
// unavailable, already installed, conflicting or version-gated, installs
// requirements first, then copies and records the rest.
func (d *Downloader) InstallNewCogs(ctx context.Context, repo *Repo, names []string) (*InstallResult, error) {
	available, err := repo.AvailableCogs()
	if err != nil {
		return nil, err
	}
	installedCogs, err := d.InstalledCogs()
	if err != nil {
		return nil, err
	}

	availableByName := map[string]*Installable{}
	for _, c := range available {
		availableByName[c.Name] = c
	}

	result := &InstallResult{}
	var toInstall []*Installable
	for _, name := range names {
		cog, ok := availableByName[name]
		if !ok {
			result.Unavailable = append(result.Unavailable, name)
			continue
		}
		if existing := findModule(installedCogs, repo.Name(), name); existing != nil {
			result.AlreadyInstalled = append(result.AlreadyInstalled, name)
			continue
		}
		conflict := false
		for _, inst := range installedCogs {
			if inst.Name == name {
				result.NameConflicts = append(result.NameConflicts, name)
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		if cog.MinBotVersion != "" && versionLess(d.botVersion, cog.MinBotVersion) {
			result.WrongVersion = append(result.WrongVersion, fmt.Sprintf("%s (needs %s)", name, cog.MinBotVersion))
			continue
		}
		toInstall = append(toInstall, cog)
	}

	if len(toInstall) == 0 {
		return result, nil
	}

	result.FailedRequirements = d.InstallRequirements(ctx, toInstall)
	if len(result.FailedRequirements) > 0 {
		return result, nil
	}

	installed, failed, err := d.InstallCogs(ctx, toInstall)
	if err != nil {
		return nil, err
	}
	// New installs also pull in the repo's shared libraries.
	libs, err := repo.AvailableLibraries()
	if err != nil {
		return nil, err
	}
	installedLibs, _, err := d.ReinstallLibraries(ctx, libs)
	if err != nil {
		return nil, err
	}

	if err := d.saveInstalled(append(installed, installedLibs...)); err != nil {
		return nil, err
	}
	result.Installed = installed
	for _, f := range failed {
		result.Failed = append(result.Failed, f.Name)
	}
	return result, nil
}

// UninstallCogs removes the named cogs from disk and from the registry.
func (d *Downloader) UninstallCogs(names []string) (removed, notInstalled []string, err error) {
	var toRemove []*InstalledModule
	for _, name := range names {
		mod, ok, lookupErr := d.IsInstalled(name)
		if lookupErr != nil {
			return nil, nil, lookupErr
		}
		if !ok {
			notInstalled = append(notInstalled, name)
			continue
		}
		if rmErr := os.RemoveAll(filepath.Join(d.cogPath, name)); rmErr != nil {
			return removed, notInstalled, fmt.Errorf("deleting cog %s: %w", name, rmErr)
		}
		toRemove = append(toRemove, mod)
		removed = append(removed, name)
	}
	if len(toRemove) > 0 {
		if err := d.removeInstalled(toRemove); err != nil {
			return removed, notInstalled, err
		}
	}
	return removed, notInstalled, nil
}

// copyModule copies a module directory, skipping VCS metadata.
func copyModule(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("cleaning %s: %w", dst, err)
	}
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if entry.IsDir() && (base == ".git" || base == ".svn") {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(dstPath, 0o755)
		}
		return copyFile(path, dstPath)
	})
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// ModuleList renders installed modules as "repo/name (commit)" lines.
func ModuleList(modules []*InstalledModule) string {
	var sb strings.Builder
	for _, m := range modules {
		commit := m.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		pin := ""
		if m.Pinned {
			pin = " [pinned]"
		}
		fmt.Fprintf(&sb, "%s/%s (%s)%s\n", m.RepoName, m.Name, commit, pin)
	}
	return sb.String()
}
