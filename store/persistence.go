// Package store provides the on-disk persistence surfaces named in spec.md
// §6: per-profile nodetree JSON files, a preferences file, calibration YAML
// blobs, and (supplementing spec.md, per SPEC_FULL.md §3) a sqlite-backed
// audit log of import/benchmark activity.
//
// Grounded in util/persistence.py's Persistence class: a base directory
// probed from a list of candidates, nodetree files named
// nodetree_{0..9}.json, and a preferences.json holding the active profile
// and network settings.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ProfileCount is the number of nodetree slots available, per spec.md §6's
// "0 ≤ N < 10" profile switch constraint.
const ProfileCount = 10

// Network mirrors schema.py's Network model: the team number, network mode,
// and static IP extension persisted alongside the active profile.
type Network struct {
	Team      int    `json:"team"`
	Mode      string `json:"mode"` // "mDNS", "Static", or "Localhost"
	StaticExt int    `json:"staticExt"`
}

// DefaultNetwork returns the zero-config network settings a fresh
// installation starts with.
func DefaultNetwork() Network {
	return Network{Team: 9999, Mode: "mDNS", StaticExt: 100}
}

// Validate enforces the bounds spec.md §6 places on a network update:
// team in [1,9999], static extension in [2,255], and a known mode.
func (n Network) Validate() error {
	if n.Team < 1 || n.Team > 9999 {
		return fmt.Errorf("store: team number %d out of range [1,9999]", n.Team)
	}
	if n.StaticExt < 2 || n.StaticExt > 255 {
		return fmt.Errorf("store: static IP extension %d out of range [2,255]", n.StaticExt)
	}
	switch n.Mode {
	case "mDNS", "Static", "Localhost":
	default:
		return fmt.Errorf("store: unknown network mode %q", n.Mode)
	}
	return nil
}

// Preferences mirrors schema.py's Preferences model: the active profile
// slot and the current network configuration.
type Preferences struct {
	Profile int     `json:"profile"`
	Network Network `json:"network"`
}

// DefaultPreferences returns the preferences a fresh installation starts
// with: profile 0, default network.
func DefaultPreferences() Preferences {
	return Preferences{Profile: 0, Network: DefaultNetwork()}
}

// NodeTreeJSON is the on-disk shape of one nodetree slot: a thin wrapper
// around arbitrary JSON so Persistence does not need to depend on the
// importer package's NodeTreeSpec, matching the layering in
// SPEC_FULL.md §1 ("external collaborators" own the wire
// schema; store only owns bytes-on-disk).
type NodeTreeJSON struct {
	Nodes []json.RawMessage `json:"nodes"`
}

// Persistence owns the on-disk data directory: per-profile nodetree files
// and the preferences file, mirroring Persistence's _get_path probing and
// lazy nodetree/prefs properties.
type Persistence struct {
	mu   sync.Mutex
	base string // empty when persistence could not find a writable directory
}

// defaultPaths mirrors Persistence.PATHS: a data directory, then a
// fallback under the invoking user's home.
func defaultPaths() []string {
	home, err := os.UserHomeDir()
	paths := []string{"/var/lib/opensight"}
	if err == nil {
		paths = append(paths, filepath.Join(home, ".local", "share", "opensight"))
	}
	return paths
}

// NewPersistence probes candidates (falling back to defaultPaths if empty)
// in order, picking the first directory it can create and write nodetree
// and preferences files under. If none is writable, persistence is
// disabled (Enabled reports false) and every nodetree or preferences read
// returns a fresh in-memory default rather than erroring, matching
// NullPersistence's "never cause errors outside this file" contract.
// LoadCalibration is the exception: it returns an error when disabled.
func NewPersistence(candidates ...string) *Persistence {
	if len(candidates) == 0 {
		candidates = defaultPaths()
	}

	p := &Persistence{}
	for _, dir := range candidates {
		if tryPrepareDir(dir) {
			p.base = dir
			return p
		}
	}
	return p
}

func tryPrepareDir(dir string) bool {
	if err := os.MkdirAll(filepath.Join(dir, "nodetrees"), 0o755); err != nil {
		return false
	}
	if err := os.MkdirAll(filepath.Join(dir, "calibration"), 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

// Enabled reports whether a writable data directory was found.
func (p *Persistence) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base != ""
}

func (p *Persistence) nodetreePath(profile int) string {
	return filepath.Join(p.base, "nodetrees", fmt.Sprintf("nodetree_%d.json", profile))
}

// LoadNodeTree reads the nodetree for profile, returning an empty tree
// (never an error) if persistence is disabled, the file does not exist, or
// its contents are not valid JSON — mirroring the original's "creating new
// NodeTree" fallback on any read failure.
func (p *Persistence) LoadNodeTree(profile int) NodeTreeJSON {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base == "" {
		return NodeTreeJSON{}
	}

	data, err := os.ReadFile(p.nodetreePath(profile))
	if err != nil {
		return NodeTreeJSON{}
	}

	var tree NodeTreeJSON
	if err := json.Unmarshal(data, &tree); err != nil {
		return NodeTreeJSON{}
	}
	return tree
}

// SaveNodeTree writes tree to profile's slot. A disabled Persistence
// silently no-ops, matching NullPersistence.
func (p *Persistence) SaveNodeTree(profile int, tree NodeTreeJSON) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base == "" {
		return nil
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling nodetree: %w", err)
	}
	if err := os.WriteFile(p.nodetreePath(profile), data, 0o644); err != nil {
		return fmt.Errorf("store: writing nodetree: %w", err)
	}
	return nil
}

func (p *Persistence) prefsPath() string {
	return filepath.Join(p.base, "preferences.json")
}

// LoadPreferences reads preferences.json, falling back to
// DefaultPreferences on any read or parse failure, matching the original's
// "Creating new preferences file" fallback.
func (p *Persistence) LoadPreferences() Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base == "" {
		return DefaultPreferences()
	}

	data, err := os.ReadFile(p.prefsPath())
	if err != nil {
		return DefaultPreferences()
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return DefaultPreferences()
	}
	return prefs
}

// SavePreferences writes prefs to preferences.json. A disabled Persistence
// silently no-ops.
func (p *Persistence) SavePreferences(prefs Preferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.base == "" {
		return nil
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling preferences: %w", err)
	}
	if err := os.WriteFile(p.prefsPath(), data, 0o644); err != nil {
		return fmt.Errorf("store: writing preferences: %w", err)
	}
	return nil
}
