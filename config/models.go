// Package config loads and persists the application's configuration
// document: user-editable settings, static settings, runtime tuning for
// the background runtime, server connection details, and the page mapping
// consumed by the UI layer. JSON and YAML files are both supported,
// selected by file extension.
package config

// UserSetting is one user-editable setting with its UI metadata.
type UserSetting struct {
	Name          string `json:"name" yaml:"name"`
	Value         any    `json:"value" yaml:"value"`
	Description   string `json:"description" yaml:"description"`
	Type          string `json:"type" yaml:"type"`
	Accessibility string `json:"accessibility" yaml:"accessibility"`
	Group         string `json:"group" yaml:"group"`
	Icon          string `json:"icon" yaml:"icon"`
}

// StaticSettings are fixed application settings, not user-editable.
type StaticSettings struct {
	Setting1 string `json:"setting_1" yaml:"setting_1"`
	Setting2 int    `json:"setting_2" yaml:"setting_2"`
}

// RuntimeSettings tune the background runtime.
type RuntimeSettings struct {
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
	MaxTokens  int `json:"max_tokens" yaml:"max_tokens"`
}

// ServerSettings describe the backing line-protocol server.
type ServerSettings struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// PageMappingEntry maps one page name to its widget and display traits.
type PageMappingEntry struct {
	WidgetRef       string `json:"widget_ref" yaml:"widget_ref"`
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Index           int    `json:"index" yaml:"index"`
	Icon            string `json:"icon" yaml:"icon"`
	Selectable      bool   `json:"selectable" yaml:"selectable"`
	LicenseRequired bool   `json:"license_required" yaml:"license_required"`
}

// PageMapping holds the built-in pages and plugin-contributed pages.
type PageMapping struct {
	Defaults map[string]PageMappingEntry `json:"defaults" yaml:"defaults"`
	Plugins  map[string]PageMappingEntry `json:"plugins" yaml:"plugins"`
}

// Configuration groups the setting sections.
type Configuration struct {
	User    map[string]UserSetting `json:"user" yaml:"user"`
	Static  StaticSettings         `json:"static" yaml:"static"`
	Runtime RuntimeSettings        `json:"runtime" yaml:"runtime"`
	Server  ServerSettings         `json:"server" yaml:"server"`
}

// Document is the full configuration file.
type Document struct {
	Configuration Configuration `json:"configuration" yaml:"configuration"`
	PageMapping   PageMapping   `json:"page_mapping" yaml:"page_mapping"`
}
