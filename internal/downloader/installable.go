package downloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ModuleType says what kind of module a repo directory holds.
type ModuleType string

const (
	ModuleTypeCog           ModuleType = "COG"
	ModuleTypeSharedLibrary ModuleType = "SHARED_LIBRARY"
)

const infoFileName = "info.json"

// moduleInfo is the info.json manifest at the root of a module directory.
type moduleInfo struct {
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Requirements  []string `json:"requirements"`
	Disabled      bool     `json:"disabled"`
	Hidden        bool     `json:"hidden"`
	MinBotVersion string   `json:"min_bot_version"`
}

// Installable describes a module as it exists in a repo's worktree.
type Installable struct {
	Repo *Repo `json:"-"`

	RepoName      string     `json:"repo_name"`
	Name          string     `json:"module_name"`
	Commit        string     `json:"commit"`
	Type          ModuleType `json:"-"`
	Description   string     `json:"-"`
	Requirements  []string   `json:"-"`
	Disabled      bool       `json:"-"`
	Hidden        bool       `json:"-"`
	MinBotVersion string     `json:"-"`
}

// Path is the module's directory inside the repo worktree.
func (i *Installable) Path() string {
	return filepath.Join(i.Repo.Path(), i.Name)
}

// InstalledModule is an Installable that has been copied into place,
// remembered with the commit it was installed from.
type InstalledModule struct {
	Installable
	Pinned bool `json:"pinned"`
}

func installedFrom(i *Installable) *InstalledModule {
	m := &InstalledModule{Installable: *i}
	if m.Commit == "" && i.Repo != nil {
		m.Commit = i.Repo.Commit()
	}
	return m
}

// loadInstallable reads a module directory's manifest. Directories without
// an info.json are not modules.
func loadInstallable(repo *Repo, dir string) (*Installable, error) {
	raw, err := os.ReadFile(filepath.Join(dir, infoFileName))
	if err != nil {
		return nil, err
	}
	var info moduleInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parsing %s for %s: %w", infoFileName, filepath.Base(dir), err)
	}

	typ := ModuleType(strings.ToUpper(info.Type))
	if typ != ModuleTypeSharedLibrary {
		typ = ModuleTypeCog
	}

	return &Installable{
		Repo:          repo,
		RepoName:      repo.Name(),
		Name:          filepath.Base(dir),
		Commit:        repo.Commit(),
		Type:          typ,
		Description:   info.Description,
		Requirements:  info.Requirements,
		Disabled:      info.Disabled,
		Hidden:        info.Hidden,
		MinBotVersion: info.MinBotVersion,
	}, nil
}

// scanModules discovers modules in a repo worktree: every top-level
// directory carrying an info.json manifest.
func scanModules(repo *Repo) ([]*Installable, error) {
	entries, err := os.ReadDir(repo.Path())
	if err != nil {
		return nil, fmt.Errorf("reading repo %s: %w", repo.Name(), err)
	}

	var modules []*Installable
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		mod, err := loadInstallable(repo, filepath.Join(repo.Path(), e.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		modules = append(modules, mod)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules, nil
}

// versionLess reports whether version a is lower than b. Versions are
// dotted integer strings; missing or malformed segments count as zero.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if an != bn {
			return an < bn
		}
	}
	return false
}
