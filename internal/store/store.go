package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the bot's persistent configuration store: a single JSON file
// holding per-cog, per-scope key-value data. Every mutation happens under
// the store lock and is flushed to disk before returning, so callers get
// read-modify-write atomicity through Update.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]*cogData
}

type cogData struct {
	Global  map[string]json.RawMessage                       `json:"global,omitempty"`
	Guilds  map[string]map[string]json.RawMessage            `json:"guild,omitempty"`
	Members map[string]map[string]map[string]json.RawMessage `json:"member,omitempty"`
}

// Open loads the store file at path, creating parent directories as needed.
// A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}

	s := &Store{path: path, data: make(map[string]*cogData)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing store file: %w", err)
	}
	return s, nil
}

// GetConf returns the configuration namespace for the named cog.
func (s *Store) GetConf(cog string) *Conf {
	return &Conf{store: s, cog: cog}
}

// save writes the store to disk. Callers must hold s.mu.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}
	raw = append(raw, '\n')

	// Write to a temp file then rename so a crash never leaves a torn file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("saving store file: %w", err)
	}
	return nil
}

func (s *Store) cog(name string) *cogData {
	cd, ok := s.data[name]
	if !ok {
		cd = &cogData{}
		s.data[name] = cd
	}
	return cd
}

// Conf is a cog's view over the store, with registered per-scope defaults.
type Conf struct {
	store *Store
	cog   string

	globalDefaults map[string]interface{}
	guildDefaults  map[string]interface{}
	memberDefaults map[string]interface{}
}

func (c *Conf) RegisterGlobal(defaults map[string]interface{}) { c.globalDefaults = defaults }
func (c *Conf) RegisterGuild(defaults map[string]interface{})  { c.guildDefaults = defaults }
func (c *Conf) RegisterMember(defaults map[string]interface{}) { c.memberDefaults = defaults }

// Global returns the cog's global scope.
func (c *Conf) Global() *Scope {
	return &Scope{conf: c, kind: scopeGlobal}
}

// Guild returns the cog's scope for a guild.
func (c *Conf) Guild(guildID string) *Scope {
	return &Scope{conf: c, kind: scopeGuild, guildID: guildID}
}

// Member returns the cog's scope for a member of a guild.
func (c *Conf) Member(guildID, userID string) *Scope {
	return &Scope{conf: c, kind: scopeMember, guildID: guildID, userID: userID}
}

// AllMembers returns a copy of all member data for this cog,
// keyed by guild ID then user ID.
func (c *Conf) AllMembers() map[string]map[string]map[string]json.RawMessage {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	out := make(map[string]map[string]map[string]json.RawMessage)
	for gid, members := range c.store.cog(c.cog).Members {
		out[gid] = make(map[string]map[string]json.RawMessage, len(members))
		for uid, values := range members {
			copied := make(map[string]json.RawMessage, len(values))
			for k, v := range values {
				copied[k] = v
			}
			out[gid][uid] = copied
		}
	}
	return out
}

// ClearMemberData drops the user's member buckets in every guild. Used by
// data-deletion sweeps.
func (c *Conf) ClearMemberData(userID string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	changed := false
	members := c.store.cog(c.cog).Members
	for gid, users := range members {
		if _, ok := users[userID]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(members, gid)
			}
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return c.store.save()
}

// GuildMembers returns a copy of all member data for one guild.
func (c *Conf) GuildMembers(guildID string) map[string]map[string]json.RawMessage {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	out := make(map[string]map[string]json.RawMessage)
	for uid, values := range c.store.cog(c.cog).Members[guildID] {
		copied := make(map[string]json.RawMessage, len(values))
		for k, v := range values {
			copied[k] = v
		}
		out[uid] = copied
	}
	return out
}

type scopeKind int

const (
	scopeGlobal scopeKind = iota
	scopeGuild
	scopeMember
)

// Scope addresses one bucket of keys: global, per-guild or per-member.
type Scope struct {
	conf    *Conf
	kind    scopeKind
	guildID string
	userID  string
}

// bucket returns the live key-value map for this scope, creating it when
// create is set. Callers must hold the store lock.
func (sc *Scope) bucket(create bool) map[string]json.RawMessage {
	cd := sc.conf.store.cog(sc.conf.cog)
	switch sc.kind {
	case scopeGlobal:
		if cd.Global == nil && create {
			cd.Global = make(map[string]json.RawMessage)
		}
		return cd.Global
	case scopeGuild:
		if cd.Guilds == nil {
			if !create {
				return nil
			}
			cd.Guilds = make(map[string]map[string]json.RawMessage)
		}
		b, ok := cd.Guilds[sc.guildID]
		if !ok && create {
			b = make(map[string]json.RawMessage)
			cd.Guilds[sc.guildID] = b
		}
		return b
	default:
		if cd.Members == nil {
			if !create {
				return nil
			}
			cd.Members = make(map[string]map[string]map[string]json.RawMessage)
		}
		g, ok := cd.Members[sc.guildID]
		if !ok {
			if !create {
				return nil
			}
			g = make(map[string]map[string]json.RawMessage)
			cd.Members[sc.guildID] = g
		}
		b, ok := g[sc.userID]
		if !ok && create {
			b = make(map[string]json.RawMessage)
			g[sc.userID] = b
		}
		return b
	}
}

func (sc *Scope) defaults() map[string]interface{} {
	switch sc.kind {
	case scopeGlobal:
		return sc.conf.globalDefaults
	case scopeGuild:
		return sc.conf.guildDefaults
	default:
		return sc.conf.memberDefaults
	}
}

// Get unmarshals the value for key into out. An unset key falls back to the
// registered default for the scope; with no default either, out is left as-is.
func (sc *Scope) Get(key string, out interface{}) error {
	sc.conf.store.mu.Lock()
	defer sc.conf.store.mu.Unlock()
	return sc.get(key, out)
}

func (sc *Scope) get(key string, out interface{}) error {
	if b := sc.bucket(false); b != nil {
		if raw, ok := b[key]; ok {
			return json.Unmarshal(raw, out)
		}
	}
	if def, ok := sc.defaults()[key]; ok {
		raw, err := json.Marshal(def)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, out)
	}
	return nil
}

// Set stores a value for key and flushes the store.
func (sc *Scope) Set(key string, value interface{}) error {
	sc.conf.store.mu.Lock()
	defer sc.conf.store.mu.Unlock()
	return sc.set(key, value)
}

func (sc *Scope) set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s.%s: %w", sc.conf.cog, key, err)
	}
	sc.bucket(true)[key] = raw
	return sc.conf.store.save()
}

// Update performs an atomic read-modify-write of key: fn receives the current
// raw value (nil when unset and no default is registered) and returns the
// replacement. The store lock is held for the whole cycle.
func (sc *Scope) Update(key string, fn func(raw json.RawMessage) (interface{}, error)) error {
	sc.conf.store.mu.Lock()
	defer sc.conf.store.mu.Unlock()

	var cur json.RawMessage
	if b := sc.bucket(false); b != nil {
		cur = b[key]
	}
	if cur == nil {
		if def, ok := sc.defaults()[key]; ok {
			raw, err := json.Marshal(def)
			if err != nil {
				return err
			}
			cur = raw
		}
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	return sc.set(key, next)
}

// Clear removes every key in this scope.
func (sc *Scope) Clear() error {
	sc.conf.store.mu.Lock()
	defer sc.conf.store.mu.Unlock()

	cd := sc.conf.store.cog(sc.conf.cog)
	switch sc.kind {
	case scopeGlobal:
		cd.Global = nil
	case scopeGuild:
		delete(cd.Guilds, sc.guildID)
	default:
		if g, ok := cd.Members[sc.guildID]; ok {
			delete(g, sc.userID)
			if len(g) == 0 {
				delete(cd.Members, sc.guildID)
			}
		}
	}
	return sc.conf.store.save()
}
