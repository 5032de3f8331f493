package downloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallCogsChecksOutEachCommitOnceAndRestores(t *testing.T) {
	git := &fakeGit{known: map[string]bool{"c1": true, "c2": true, "c3": true}}
	repo := newFakeRepo(t, "community", "c3", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG"})
	writeModule(t, repo.Path(), "tags", moduleInfo{Type: "COG"})
	writeModule(t, repo.Path(), "polls", moduleInfo{Type: "COG"})

	d := newTestDownloader(t, repo)
	cogs := []*Installable{
		{Repo: repo, RepoName: "community", Name: "karma", Commit: "c1", Type: ModuleTypeCog},
		{Repo: repo, RepoName: "community", Name: "tags", Commit: "c1", Type: ModuleTypeCog},
		{Repo: repo, RepoName: "community", Name: "polls", Commit: "c2", Type: ModuleTypeCog},
	}

	installed, failed, err := d.InstallCogs(context.Background(), cogs)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, installed, 3)

	// two distinct commits plus the restore to the original one
	assert.Len(t, git.checkouts, 3)
	assert.Equal(t, "c3", git.checkouts[len(git.checkouts)-1], "repo must end up where it started")
	assert.Equal(t, "c3", repo.Commit())

	for _, name := range []string{"karma", "tags", "polls"} {
		_, statErr := os.Stat(filepath.Join(d.CogPath(), name, "module.txt"))
		assert.NoErrorf(t, statErr, "cog %s should be copied into place", name)
	}
}

func TestInstallCogsBadCommitFailsThatBatchOnly(t *testing.T) {
	git := &fakeGit{known: map[string]bool{"c2": true, "c3": true}}
	repo := newFakeRepo(t, "community", "c3", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG"})
	writeModule(t, repo.Path(), "tags", moduleInfo{Type: "COG"})

	d := newTestDownloader(t, repo)
	cogs := []*Installable{
		{Repo: repo, RepoName: "community", Name: "karma", Commit: "lost", Type: ModuleTypeCog},
		{Repo: repo, RepoName: "community", Name: "tags", Commit: "c2", Type: ModuleTypeCog},
	}

	installed, failed, err := d.InstallCogs(context.Background(), cogs)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "karma", failed[0].Name)
	require.Len(t, installed, 1)
	assert.Equal(t, "tags", installed[0].Name)
	assert.Equal(t, "c3", git.checkouts[len(git.checkouts)-1])
}

func TestCopyModuleSkipsVCSMetadata(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "data", "words.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "cog.txt"), []byte("hi"), 0o644))

	dst := filepath.Join(t.TempDir(), "karma")
	require.NoError(t, copyModule(src, dst))

	_, err := os.Stat(filepath.Join(dst, "cog.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "data", "words.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, ".git"))
	assert.True(t, os.IsNotExist(err))
}

func TestInstallNewCogsFiltersRequests(t *testing.T) {
	git := &fakeGit{known: map[string]bool{"c2": true}}
	repo := newFakeRepo(t, "community", "c2", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG"})
	writeModule(t, repo.Path(), "future", moduleInfo{Type: "COG", MinBotVersion: "99.0.0"})
	writeModule(t, repo.Path(), "tags", moduleInfo{Type: "COG"})

	otherGit := &fakeGit{known: map[string]bool{"c9": true}}
	otherRepo := newFakeRepo(t, "elsewhere", "c9", otherGit)

	d := newTestDownloader(t, repo, otherRepo)
	require.NoError(t, d.saveInstalled([]*InstalledModule{
		installedCog(repo, "karma", "c2"),
		installedCog(otherRepo, "tags", "c9"),
	}))

	result, err := d.InstallNewCogs(context.Background(), repo, []string{"karma", "tags", "future", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"karma"}, result.AlreadyInstalled)
	assert.Equal(t, []string{"tags"}, result.NameConflicts)
	assert.Equal(t, []string{"ghost"}, result.Unavailable)
	require.Len(t, result.WrongVersion, 1)
	assert.Contains(t, result.WrongVersion[0], "future")
	assert.Empty(t, result.Installed)
}

func TestInstallNewCogsInstallsRequirementsFirst(t *testing.T) {
	git := &fakeGit{known: map[string]bool{"c2": true}}
	repo := newFakeRepo(t, "community", "c2", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG", Requirements: []string{"tabulate"}})

	d := newTestDownloader(t, repo)
	result, err := d.InstallNewCogs(context.Background(), repo, []string{"karma"})
	require.NoError(t, err)
	require.Len(t, result.Installed, 1)
	assert.Equal(t, "karma", result.Installed[0].Name)
	require.Len(t, git.pipCalls, 1)
	assert.Contains(t, git.pipCalls[0], "tabulate")

	got, ok, err := d.IsInstalled("karma")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", got.Commit)
}

func TestInstallNewCogsAbortsWhenRequirementsFail(t *testing.T) {
	git := &fakeGit{known: map[string]bool{"c2": true}, failPip: true}
	repo := newFakeRepo(t, "community", "c2", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG", Requirements: []string{"tabulate"}})

	d := newTestDownloader(t, repo)
	result, err := d.InstallNewCogs(context.Background(), repo, []string{"karma"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tabulate"}, result.FailedRequirements)
	assert.Empty(t, result.Installed)

	_, statErr := os.Stat(filepath.Join(d.CogPath(), "karma"))
	assert.True(t, os.IsNotExist(statErr), "no files are copied when requirements fail")
}
