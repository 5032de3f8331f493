package downloader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rookbot/internal/store"
)

func newTestRepoManager(t *testing.T) *RepoManager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return NewRepoManager(s, t.TempDir())
}

func TestRepoManagerPersistsRepoSet(t *testing.T) {
	rm := newTestRepoManager(t)
	git := &fakeGit{}
	rm.repos["community"] = newFakeRepo(t, "community", "c1", git)
	require.NoError(t, rm.persist())

	entries := map[string]repoEntry{}
	require.NoError(t, rm.conf.Global().Get("repos", &entries))
	require.Contains(t, entries, "community")
	assert.Equal(t, "https://example.invalid/community.git", entries["community"].URL)
	assert.Equal(t, "main", entries["community"].Branch)
}

func TestRepoManagerRemoveForgetsRepo(t *testing.T) {
	rm := newTestRepoManager(t)
	git := &fakeGit{}
	rm.repos["community"] = newFakeRepo(t, "community", "c1", git)
	require.NoError(t, rm.persist())

	require.NoError(t, rm.Remove("community"))
	_, ok := rm.Get("community")
	assert.False(t, ok)

	entries := map[string]repoEntry{}
	require.NoError(t, rm.conf.Global().Get("repos", &entries))
	assert.NotContains(t, entries, "community")

	assert.ErrorIs(t, rm.Remove("community"), ErrMissingRepo)
}

func TestRepoManagerRejectsBadNames(t *testing.T) {
	rm := newTestRepoManager(t)
	_, err := rm.Add(context.Background(), "bad name!", "https://example.invalid/x.git", "")
	require.Error(t, err)
}

func TestRepoManagerAllSorted(t *testing.T) {
	rm := newTestRepoManager(t)
	git := &fakeGit{}
	rm.repos["zeta"] = newFakeRepo(t, "zeta", "c1", git)
	rm.repos["alpha"] = newFakeRepo(t, "alpha", "c1", git)

	all := rm.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "zeta", all[1].Name())
}

func TestUpdateReposCollectsFailures(t *testing.T) {
	rm := newTestRepoManager(t)

	movedGit := &fakeGit{pullTo: "c2"}
	moved := newFakeRepo(t, "moved", "c1", movedGit)

	stuckGit := &fakeGit{}
	stuck := newFakeRepo(t, "stuck", "c1", stuckGit)

	brokenGit := &fakeGit{failPull: true}
	broken := newFakeRepo(t, "broken", "c1", brokenGit)

	rm.repos["moved"] = moved
	rm.repos["stuck"] = stuck
	rm.repos["broken"] = broken

	updated, failed, err := rm.UpdateRepos(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, updated, 1)
	assert.Same(t, moved, updated[0])
	assert.Equal(t, "c2", moved.Commit())
	assert.Equal(t, []string{"broken"}, failed)
	assert.Equal(t, "c1", stuck.Commit())
}
