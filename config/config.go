package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxWorkers = 4
	defaultMaxTokens  = 2
)

// Manager loads a configuration document from disk and persists mutations
// back to the same file, preserving its format. All methods are safe for
// concurrent use.
type Manager struct {
	mu   sync.RWMutex
	path string
	doc  Document
}

// Load reads, validates, and defaults the configuration at path. The file
// format is chosen by extension: .yaml/.yml parse as YAML, everything else
// as JSON.
func Load(path string) (*Manager, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var doc Document
	if isYAML(path) {
		err = yaml.Unmarshal(raw, &doc)
	} else {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse configuration %s: %w", filepath.Base(path), err)
	}

	applyDefaults(&doc)
	if err := validate(&doc); err != nil {
		return nil, err
	}

	return &Manager{path: path, doc: doc}, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func applyDefaults(doc *Document) {
	if doc.Configuration.Runtime.MaxWorkers == 0 {
		doc.Configuration.Runtime.MaxWorkers = defaultMaxWorkers
	}
	if doc.Configuration.Runtime.MaxTokens == 0 {
		doc.Configuration.Runtime.MaxTokens = defaultMaxTokens
	}
	if doc.Configuration.User == nil {
		doc.Configuration.User = map[string]UserSetting{}
	}
	if doc.PageMapping.Defaults == nil {
		doc.PageMapping.Defaults = map[string]PageMappingEntry{}
	}
	if doc.PageMapping.Plugins == nil {
		doc.PageMapping.Plugins = map[string]PageMappingEntry{}
	}
}

func validate(doc *Document) error {
	rt := doc.Configuration.Runtime
	if rt.MaxWorkers < 1 {
		return fmt.Errorf("configuration: max_workers must be >= 1, got %d", rt.MaxWorkers)
	}
	if rt.MaxTokens < 1 {
		return fmt.Errorf("configuration: max_tokens must be >= 1, got %d", rt.MaxTokens)
	}
	if doc.Configuration.Server.Port < 0 || doc.Configuration.Server.Port > 65535 {
		return fmt.Errorf("configuration: server port out of range: %d", doc.Configuration.Server.Port)
	}
	return nil
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// Runtime returns the runtime tuning section.
func (m *Manager) Runtime() RuntimeSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Configuration.Runtime
}

// Server returns the server connection section.
func (m *Manager) Server() ServerSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Configuration.Server
}

// Static returns the static settings section.
func (m *Manager) Static() StaticSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Configuration.Static
}

// UserSetting returns the named user setting.
func (m *Manager) UserSetting(name string) (UserSetting, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.doc.Configuration.User[name]
	return s, ok
}

// UserSettings returns a copy of all user settings keyed by name.
func (m *Manager) UserSettings() map[string]UserSetting {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]UserSetting, len(m.doc.Configuration.User))
	for k, v := range m.doc.Configuration.User {
		out[k] = v
	}
	return out
}

// SetUserSetting updates or adds a user setting in memory. Call
// SaveUserSettings to persist.
func (m *Manager) SetUserSetting(name string, setting UserSetting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.Configuration.User[name] = setting
}

// SaveUserSettings writes the current document back to the backing file.
func (m *Manager) SaveUserSettings() error {
	return m.save()
}

// PageMapping returns a deep copy of the page mapping.
func (m *Manager) PageMapping() PageMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := PageMapping{
		Defaults: make(map[string]PageMappingEntry, len(m.doc.PageMapping.Defaults)),
		Plugins:  make(map[string]PageMappingEntry, len(m.doc.PageMapping.Plugins)),
	}
	for k, v := range m.doc.PageMapping.Defaults {
		out.Defaults[k] = v
	}
	for k, v := range m.doc.PageMapping.Plugins {
		out.Plugins[k] = v
	}
	return out
}

// AddPageMapping adds or replaces the named entry in the given section
// ("defaults" or "plugins") and persists the document.
func (m *Manager) AddPageMapping(section, name string, entry PageMappingEntry) error {
	m.mu.Lock()
	target, err := m.sectionLocked(section)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	target[name] = entry
	m.mu.Unlock()

	return m.save()
}

// RemovePageMapping deletes the named entry from the given section and
// persists the document. Removing an absent entry is a no-op.
func (m *Manager) RemovePageMapping(section, name string) error {
	m.mu.Lock()
	target, err := m.sectionLocked(section)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := target[name]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(target, name)
	m.mu.Unlock()

	return m.save()
}

func (m *Manager) sectionLocked(section string) (map[string]PageMappingEntry, error) {
	switch section {
	case "defaults":
		return m.doc.PageMapping.Defaults, nil
	case "plugins":
		return m.doc.PageMapping.Plugins, nil
	default:
		return nil, fmt.Errorf("configuration: unknown page mapping section %q", section)
	}
}

func (m *Manager) save() error {
	m.mu.RLock()
	doc := m.doc
	path := m.path
	m.mu.RUnlock()

	var (
		raw []byte
		err error
	)
	if isYAML(path) {
		raw, err = yaml.Marshal(&doc)
	} else {
		raw, err = json.MarshalIndent(&doc, "", "    ")
	}
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	return nil
}
