package downloader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrUnknownRevision marks a commit the repo does not know about,
	// typically after history was rewritten upstream.
	ErrUnknownRevision = errors.New("unknown revision")

	ErrExistingRepo = errors.New("repo already exists")
	ErrMissingRepo  = errors.New("repo not found")

	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
)

// commandError carries the exit code and combined output of a failed
// subprocess so callers can classify failures.
type commandError struct {
	code   int
	output string
	err    error
}

func (e *commandError) Error() string {
	out := strings.TrimSpace(e.output)
	if out != "" {
		return fmt.Sprintf("exit status %d: %s", e.code, out)
	}
	return fmt.Sprintf("exit status %d: %v", e.code, e.err)
}

// runner executes a subprocess in dir and returns its combined output.
// Repos use it for every git and pip invocation; tests inject fakes.
type runner func(ctx context.Context, dir, name string, args ...string) (string, error)

func execRun(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), &commandError{code: exitErr.ExitCode(), output: string(out), err: err}
		}
		return string(out), err
	}
	return string(out), nil
}

// Repo is a version-controlled collection of modules, backed by a git clone
// on disk.
type Repo struct {
	name   string
	url    string
	branch string
	path   string
	commit string

	run runner
}

func newRepo(name, url, branch, path string) *Repo {
	return &Repo{name: name, url: url, branch: branch, path: path, run: execRun}
}

func (r *Repo) Name() string   { return r.name }
func (r *Repo) URL() string    { return r.url }
func (r *Repo) Branch() string { return r.branch }
func (r *Repo) Path() string   { return r.path }

// Commit is the commit the worktree currently sits at.
func (r *Repo) Commit() string { return r.commit }

// Clone checks the repo out on disk and records its commit.
func (r *Repo) Clone(ctx context.Context) error {
	args := []string{"clone"}
	if r.branch != "" {
		args = append(args, "--branch", r.branch)
	}
	args = append(args, r.url, r.path)

	if _, err := r.run(ctx, filepath.Dir(r.path), "git", args...); err != nil {
		return fmt.Errorf("cloning %s: %w", r.name, err)
	}
	return r.refreshCommit(ctx)
}

// Update pulls the tracked branch and returns the commits before and after.
func (r *Repo) Update(ctx context.Context) (oldCommit, newCommit string, err error) {
	oldCommit = r.commit

	// An earlier install may have left the worktree on a detached commit.
	branch := r.branch
	if branch == "" {
		if branch, err = r.defaultBranch(ctx); err != nil {
			return oldCommit, oldCommit, err
		}
		r.branch = branch
	}
	if _, err = r.run(ctx, r.path, "git", "checkout", branch); err != nil {
		return oldCommit, oldCommit, fmt.Errorf("checking out %s of %s: %w", branch, r.name, err)
	}
	if _, err = r.run(ctx, r.path, "git", "pull", "--ff-only"); err != nil {
		return oldCommit, oldCommit, fmt.Errorf("pulling %s: %w", r.name, err)
	}
	if err = r.refreshCommit(ctx); err != nil {
		return oldCommit, oldCommit, err
	}
	return oldCommit, r.commit, nil
}

func (r *Repo) defaultBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.path, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving branch of %s: %w", r.name, err)
	}
	return strings.TrimSpace(out), nil
}

func (r *Repo) refreshCommit(ctx context.Context) error {
	commit, err := r.CurrentCommit(ctx)
	if err != nil {
		return err
	}
	r.commit = commit
	return nil
}

// CurrentCommit asks git for the worktree's HEAD commit.
func (r *Repo) CurrentCommit(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.path, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD of %s: %w", r.name, err)
	}
	return strings.TrimSpace(out), nil
}

// Checkout moves the worktree to the given commit.
func (r *Repo) Checkout(ctx context.Context, commit string) error {
	if commit == "" || commit == r.commit {
		return nil
	}
	if _, err := r.run(ctx, r.path, "git", "checkout", commit); err != nil {
		return fmt.Errorf("checking out %s in %s: %w", commit, r.name, err)
	}
	r.commit = commit
	return nil
}

// IsAncestor reports whether maybeAncestor lies in descendant's history.
// A commit git does not recognize yields ErrUnknownRevision.
func (r *Repo) IsAncestor(ctx context.Context, maybeAncestor, descendant string) (bool, error) {
	_, err := r.run(ctx, r.path, "git", "merge-base", "--is-ancestor", maybeAncestor, descendant)
	if err == nil {
		return true, nil
	}
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		if cmdErr.code == 1 {
			return false, nil
		}
		// git exits 128 for revisions it cannot resolve
		return false, fmt.Errorf("%w: %s", ErrUnknownRevision, maybeAncestor)
	}
	return false, err
}

// AvailableModules lists the modules present in the worktree at the current
// commit.
func (r *Repo) AvailableModules() ([]*Installable, error) {
	return scanModules(r)
}

// AvailableCogs lists the non-hidden, non-disabled cogs in the worktree.
func (r *Repo) AvailableCogs() ([]*Installable, error) {
	mods, err := r.AvailableModules()
	if err != nil {
		return nil, err
	}
	var cogs []*Installable
	for _, m := range mods {
		if m.Type == ModuleTypeCog && !m.Hidden && !m.Disabled {
			cogs = append(cogs, m)
		}
	}
	return cogs, nil
}

// AvailableLibraries lists the shared libraries in the worktree.
func (r *Repo) AvailableLibraries() ([]*Installable, error) {
	mods, err := r.AvailableModules()
	if err != nil {
		return nil, err
	}
	var libs []*Installable
	for _, m := range mods {
		if m.Type == ModuleTypeSharedLibrary {
			libs = append(libs, m)
		}
	}
	return libs, nil
}

// LastModuleOccurrence returns the module as it exists at the current
// commit, or nil when the repo no longer ships it.
func (r *Repo) LastModuleOccurrence(name string) (*Installable, error) {
	mods, err := r.AvailableModules()
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, nil
}

// ModifiedModules resolves the modules touched between two commits, as they
// exist in the current worktree. Modules deleted upstream resolve to nothing.
func (r *Repo) ModifiedModules(ctx context.Context, oldCommit, newCommit string) ([]*Installable, error) {
	out, err := r.run(ctx, r.path, "git", "diff", "--name-only", oldCommit, newCommit)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s in %s: %w", oldCommit, newCommit, r.name, err)
	}

	touched := make(map[string]bool)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		top := line
		if i := strings.IndexByte(line, '/'); i >= 0 {
			top = line[:i]
		}
		touched[top] = true
	}

	available, err := r.AvailableModules()
	if err != nil {
		return nil, err
	}
	var modified []*Installable
	for _, m := range available {
		if touched[m.Name] {
			modified = append(modified, m)
		}
	}
	return modified, nil
}

// InstallRawRequirements installs requirements into target with pip.
func (r *Repo) InstallRawRequirements(ctx context.Context, requirements []string, target string) error {
	if len(requirements) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install", "--upgrade", "--target", target}, requirements...)
	if _, err := r.run(ctx, r.path, "python3", args...); err != nil {
		return fmt.Errorf("installing requirements %v: %w", requirements, err)
	}
	return nil
}
