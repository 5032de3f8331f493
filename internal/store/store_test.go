package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return s
}

func TestScopeDefaults(t *testing.T) {
	s := openTestStore(t)
	conf := s.GetConf("Warnings")
	conf.RegisterGuild(map[string]interface{}{
		"toggle_dm": true,
		"warn_channel": "",
	})

	var dm bool
	require.NoError(t, conf.Guild("g1").Get("toggle_dm", &dm))
	assert.True(t, dm, "unset key should fall back to registered default")

	require.NoError(t, conf.Guild("g1").Set("toggle_dm", false))
	require.NoError(t, conf.Guild("g1").Get("toggle_dm", &dm))
	assert.False(t, dm)

	// Other guilds keep the default.
	dm = false
	require.NoError(t, conf.Guild("g2").Get("toggle_dm", &dm))
	assert.True(t, dm)
}

func TestScopeUpdate(t *testing.T) {
	s := openTestStore(t)
	conf := s.GetConf("Warnings")
	conf.RegisterMember(map[string]interface{}{
		"warnings": map[string]string{},
	})

	member := conf.Member("g1", "u1")
	err := member.Update("warnings", func(raw json.RawMessage) (interface{}, error) {
		warns := map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &warns); err != nil {
				return nil, err
			}
		}
		warns["123"] = "spamming"
		return warns, nil
	})
	require.NoError(t, err)

	var warns map[string]string
	require.NoError(t, member.Get("warnings", &warns))
	assert.Equal(t, map[string]string{"123": "spamming"}, warns)
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.GetConf("Bank").Member("g1", "u1").Set("balance", 250))

	reopened, err := Open(path)
	require.NoError(t, err)
	var balance int
	require.NoError(t, reopened.GetConf("Bank").Member("g1", "u1").Get("balance", &balance))
	assert.Equal(t, 250, balance)
}

func TestScopeClear(t *testing.T) {
	s := openTestStore(t)
	conf := s.GetConf("Bank")

	require.NoError(t, conf.Member("g1", "u1").Set("balance", 100))
	require.NoError(t, conf.Member("g1", "u2").Set("balance", 200))
	require.NoError(t, conf.Member("g1", "u1").Clear())

	members := conf.GuildMembers("g1")
	assert.NotContains(t, members, "u1")
	assert.Contains(t, members, "u2")
}

func TestAllMembers(t *testing.T) {
	s := openTestStore(t)
	conf := s.GetConf("Warnings")

	require.NoError(t, conf.Member("g1", "u1").Set("warnings", map[string]string{"1": "a"}))
	require.NoError(t, conf.Member("g2", "u1").Set("warnings", map[string]string{"2": "b"}))

	all := conf.AllMembers()
	assert.Len(t, all, 2)
	assert.Contains(t, all["g1"], "u1")
	assert.Contains(t, all["g2"], "u1")
}
