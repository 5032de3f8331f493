package downloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAncestor(t *testing.T) {
	git := &fakeGit{
		known:     map[string]bool{"c1": true, "c2": true},
		ancestors: map[string]bool{"c1 c2": true},
	}
	repo := newFakeRepo(t, "community", "c2", git)
	ctx := context.Background()

	ok, err := repo.IsAncestor(ctx, "c1", "c2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsAncestor(ctx, "c2", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.IsAncestor(ctx, "gone", "c2")
	assert.ErrorIs(t, err, ErrUnknownRevision)
}

func TestUpdateReturnsOldAndNewCommit(t *testing.T) {
	git := &fakeGit{pullTo: "c3"}
	repo := newFakeRepo(t, "community", "c2", git)

	oldCommit, newCommit, err := repo.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c2", oldCommit)
	assert.Equal(t, "c3", newCommit)
	assert.Equal(t, "c3", repo.Commit())
}

func TestUpdateFailureKeepsCommit(t *testing.T) {
	git := &fakeGit{failPull: true}
	repo := newFakeRepo(t, "community", "c2", git)

	_, _, err := repo.Update(context.Background())
	require.Error(t, err)
	assert.Equal(t, "c2", repo.Commit())
}

func TestScanModules(t *testing.T) {
	git := &fakeGit{}
	repo := newFakeRepo(t, "community", "c2", git)

	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG", Description: "karma tracking"})
	writeModule(t, repo.Path(), "helpers", moduleInfo{Type: "SHARED_LIBRARY"})
	writeModule(t, repo.Path(), "secret", moduleInfo{Type: "COG", Hidden: true})
	writeModule(t, repo.Path(), "broken", moduleInfo{Type: "COG", Disabled: true})
	// a directory without info.json is not a module
	require.NoError(t, writeEmptyDir(repo.Path(), "assets"))

	mods, err := repo.AvailableModules()
	require.NoError(t, err)
	assert.Len(t, mods, 4)
	for _, m := range mods {
		assert.Equal(t, "c2", m.Commit)
		assert.Equal(t, "community", m.RepoName)
	}

	cogs, err := repo.AvailableCogs()
	require.NoError(t, err)
	require.Len(t, cogs, 1, "hidden and disabled cogs are not offered")
	assert.Equal(t, "karma", cogs[0].Name)

	libs, err := repo.AvailableLibraries()
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "helpers", libs[0].Name)

	last, err := repo.LastModuleOccurrence("secret")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Hidden)

	last, err = repo.LastModuleOccurrence("ghost")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestModifiedModules(t *testing.T) {
	git := &fakeGit{
		diffs: map[string]string{
			"c1 c2": "karma/commands.txt\nkarma/info.json\nREADME.md\nremoved_module/file.txt\n",
		},
	}
	repo := newFakeRepo(t, "community", "c2", git)
	writeModule(t, repo.Path(), "karma", moduleInfo{Type: "COG"})
	writeModule(t, repo.Path(), "tags", moduleInfo{Type: "COG"})

	mods, err := repo.ModifiedModules(context.Background(), "c1", "c2")
	require.NoError(t, err)
	require.Len(t, mods, 1, "untouched and deleted modules do not resolve")
	assert.Equal(t, "karma", mods[0].Name)
}

func TestVersionLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.1", "1.0.0", false},
		{"1.0", "1.0.0", false},
		{"0.9", "1.0.0", true},
		{"2", "10", true},
		{"", "0.0.1", true},
		{"1.0.0", "1.0.0", false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, versionLess(tc.a, tc.b), "versionLess(%q, %q)", tc.a, tc.b)
	}
}
