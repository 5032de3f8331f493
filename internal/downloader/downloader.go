package downloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"rookbot/internal/store"
)

// Downloader installs modules from tracked repos and keeps a registry of
// what is installed at which commit.
type Downloader struct {
	conf       *store.Conf
	repos      *RepoManager
	cogPath    string
	libPath    string
	botVersion string
}

// New sets up the downloader's install directories under dataDir.
func New(s *store.Store, repos *RepoManager, dataDir, botVersion string) (*Downloader, error) {
	d := &Downloader{
		conf:       s.GetConf("Downloader"),
		repos:      repos,
		cogPath:    filepath.Join(dataDir, "cogs"),
		libPath:    filepath.Join(dataDir, "lib"),
		botVersion: botVersion,
	}
	d.conf.RegisterGlobal(map[string]interface{}{
		"installed_cogs":      map[string]map[string]*InstalledModule{},
		"installed_libraries": map[string]map[string]*InstalledModule{},
	})
	for _, dir := range []string{d.cogPath, d.libPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return d, nil
}

func (d *Downloader) CogPath() string     { return d.cogPath }
func (d *Downloader) LibPath() string     { return d.libPath }
func (d *Downloader) Repos() *RepoManager { return d.repos }

func registryKey(typ ModuleType) string {
	if typ == ModuleTypeSharedLibrary {
		return "installed_libraries"
	}
	return "installed_cogs"
}

func (d *Downloader) installed(key string, typ ModuleType) ([]*InstalledModule, error) {
	registry := map[string]map[string]*InstalledModule{}
	if err := d.conf.Global().Get(key, &registry); err != nil {
		return nil, err
	}

	var modules []*InstalledModule
	for repoName, mods := range registry {
		repo, _ := d.repos.Get(repoName)
		for _, mod := range mods {
			mod.Repo = repo
			mod.Type = typ
			modules = append(modules, mod)
		}
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].RepoName != modules[j].RepoName {
			return modules[i].RepoName < modules[j].RepoName
		}
		return modules[i].Name < modules[j].Name
	})
	return modules, nil
}

// InstalledCogs lists the cogs recorded in the registry. Cogs whose repo was
// removed come back with a nil Repo.
func (d *Downloader) InstalledCogs() ([]*InstalledModule, error) {
	return d.installed("installed_cogs", ModuleTypeCog)
}

// InstalledLibraries lists the shared libraries recorded in the registry.
func (d *Downloader) InstalledLibraries() ([]*InstalledModule, error) {
	return d.installed("installed_libraries", ModuleTypeSharedLibrary)
}

// InstalledModules lists everything in the registry.
func (d *Downloader) InstalledModules() ([]*InstalledModule, error) {
	cogs, err := d.InstalledCogs()
	if err != nil {
		return nil, err
	}
	libs, err := d.InstalledLibraries()
	if err != nil {
		return nil, err
	}
	return append(cogs, libs...), nil
}

// IsInstalled looks an installed cog up by module name.
func (d *Downloader) IsInstalled(name string) (*InstalledModule, bool, error) {
	cogs, err := d.InstalledCogs()
	if err != nil {
		return nil, false, err
	}
	for _, c := range cogs {
		if c.Name == name {
			return c, true, nil
		}
	}
	return nil, false, nil
}

// saveInstalled upserts modules into the registry.
func (d *Downloader) saveInstalled(modules []*InstalledModule) error {
	byKey := map[string][]*InstalledModule{}
	for _, m := range modules {
		key := registryKey(m.Type)
		byKey[key] = append(byKey[key], m)
	}
	for key, mods := range byKey {
		err := d.conf.Global().Update(key, func(raw json.RawMessage) (interface{}, error) {
			registry := map[string]map[string]*InstalledModule{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &registry); err != nil {
					return nil, err
				}
			}
			for _, m := range mods {
				repoMods, ok := registry[m.RepoName]
				if !ok {
					repoMods = make(map[string]*InstalledModule)
					registry[m.RepoName] = repoMods
				}
				repoMods[m.Name] = m
			}
			return registry, nil
		})
		if err != nil {
			return fmt.Errorf("saving registry %s: %w", key, err)
		}
	}
	return nil
}

// removeInstalled drops modules from the registry.
func (d *Downloader) removeInstalled(modules []*InstalledModule) error {
	byKey := map[string][]*InstalledModule{}
	for _, m := range modules {
		key := registryKey(m.Type)
		byKey[key] = append(byKey[key], m)
	}
	for key, mods := range byKey {
		err := d.conf.Global().Update(key, func(raw json.RawMessage) (interface{}, error) {
			registry := map[string]map[string]*InstalledModule{}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &registry); err != nil {
					return nil, err
				}
			}
			for _, m := range mods {
				delete(registry[m.RepoName], m.Name)
				if len(registry[m.RepoName]) == 0 {
					delete(registry, m.RepoName)
				}
			}
			return registry, nil
		})
		if err != nil {
			return fmt.Errorf("updating registry %s: %w", key, err)
		}
	}
	return nil
}

// SetPinned flips the pinned flag on an installed cog. Pinned cogs are left
// alone by update reconciliation.
func (d *Downloader) SetPinned(name string, pinned bool) error {
	mod, ok, err := d.IsInstalled(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cog %s is not installed", name)
	}
	mod.Pinned = pinned
	return d.saveInstalled([]*InstalledModule{mod})
}
