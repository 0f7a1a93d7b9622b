package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
    "configuration": {
        "user": {
            "theme": {
                "name": "theme",
                "value": "dark",
                "description": "UI theme",
                "type": "string",
                "accessibility": "user",
                "group": "appearance",
                "icon": "palette"
            }
        },
        "static": {
            "setting_1": "alpha",
            "setting_2": 7
        },
        "runtime": {
            "max_workers": 8,
            "max_tokens": 3
        },
        "server": {
            "host": "127.0.0.1",
            "port": 9000,
            "timeout_seconds": 5
        }
    },
    "page_mapping": {
        "defaults": {
            "home": {
                "widget_ref": "HomeWidget",
                "enabled": true,
                "index": 0,
                "icon": "home.svg",
                "selectable": true,
                "license_required": false
            }
        },
        "plugins": {}
    }
}`

const sampleYAML = `configuration:
  user: {}
  static:
    setting_1: beta
    setting_2: 2
  runtime:
    max_workers: 2
    max_tokens: 1
  server:
    host: localhost
    port: 9100
    timeout_seconds: 10
page_mapping:
  defaults: {}
  plugins: {}
`

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	mgr, err := Load(writeTempConfig(t, "configuration.json", sampleJSON))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if static := mgr.Static(); static.Setting1 != "alpha" || static.Setting2 != 7 {
		t.Errorf("static settings = %+v", static)
	}
	if rt := mgr.Runtime(); rt.MaxWorkers != 8 || rt.MaxTokens != 3 {
		t.Errorf("runtime settings = %+v", rt)
	}
	if srv := mgr.Server(); srv.Host != "127.0.0.1" || srv.Port != 9000 {
		t.Errorf("server settings = %+v", srv)
	}

	theme, ok := mgr.UserSetting("theme")
	if !ok {
		t.Fatal("theme setting missing")
	}
	if theme.Value != "dark" || theme.Group != "appearance" {
		t.Errorf("theme setting = %+v", theme)
	}

	pm := mgr.PageMapping()
	home, ok := pm.Defaults["home"]
	if !ok {
		t.Fatal("home page mapping missing")
	}
	if home.WidgetRef != "HomeWidget" || !home.Enabled {
		t.Errorf("home entry = %+v", home)
	}
}

func TestLoad_YAML(t *testing.T) {
	mgr, err := Load(writeTempConfig(t, "configuration.yaml", sampleYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if static := mgr.Static(); static.Setting1 != "beta" {
		t.Errorf("static settings = %+v", static)
	}
	if rt := mgr.Runtime(); rt.MaxWorkers != 2 || rt.MaxTokens != 1 {
		t.Errorf("runtime settings = %+v", rt)
	}
}

func TestLoad_DefaultsRuntimeSettings(t *testing.T) {
	minimal := `{"configuration": {"static": {"setting_1": "x", "setting_2": 1}}, "page_mapping": {}}`
	mgr, err := Load(writeTempConfig(t, "configuration.json", minimal))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	rt := mgr.Runtime()
	if rt.MaxWorkers != 4 || rt.MaxTokens != 2 {
		t.Errorf("expected defaults (4, 2), got %+v", rt)
	}
}

func TestLoad_RejectsInvalidRuntimeSettings(t *testing.T) {
	bad := `{"configuration": {"runtime": {"max_workers": -1, "max_tokens": 2}}, "page_mapping": {}}`
	if _, err := Load(writeTempConfig(t, "configuration.json", bad)); err == nil {
		t.Fatal("expected validation error for negative max_workers")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "configuration.json", "{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveUserSettings_RoundTrip(t *testing.T) {
	path := writeTempConfig(t, "configuration.json", sampleJSON)
	mgr, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	mgr.SetUserSetting("volume", UserSetting{
		Name:  "volume",
		Value: float64(80),
		Type:  "int",
		Group: "audio",
	})
	if err := mgr.SaveUserSettings(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	volume, ok := reloaded.UserSetting("volume")
	if !ok {
		t.Fatal("saved setting missing after reload")
	}
	if volume.Group != "audio" {
		t.Errorf("volume setting = %+v", volume)
	}

	// Prior settings are preserved.
	if _, ok := reloaded.UserSetting("theme"); !ok {
		t.Error("existing setting lost on save")
	}
}

func TestAddRemovePageMapping_Persists(t *testing.T) {
	path := writeTempConfig(t, "configuration.json", sampleJSON)
	mgr, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	entry := PageMappingEntry{
		WidgetRef:  "PluginWidget",
		Enabled:    true,
		Index:      5,
		Icon:       "plugin.svg",
		Selectable: true,
	}
	if err := mgr.AddPageMapping("plugins", "my_plugin", entry); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, ok := reloaded.PageMapping().Plugins["my_plugin"]; !ok {
		t.Fatal("added entry missing after reload")
	}

	if err := mgr.RemovePageMapping("plugins", "my_plugin"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	reloaded, err = Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if _, ok := reloaded.PageMapping().Plugins["my_plugin"]; ok {
		t.Fatal("removed entry still present after reload")
	}
}

func TestRemovePageMapping_AbsentEntryIsNoOp(t *testing.T) {
	path := writeTempConfig(t, "configuration.json", sampleJSON)
	mgr, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.RemovePageMapping("plugins", "ghost"); err != nil {
		t.Fatalf("remove of absent entry failed: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("file rewritten for a no-op removal")
	}
}

func TestAddPageMapping_UnknownSection(t *testing.T) {
	mgr, err := Load(writeTempConfig(t, "configuration.json", sampleJSON))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := mgr.AddPageMapping("widgets", "x", PageMappingEntry{}); err == nil {
		t.Fatal("expected error for unknown section")
	}
}

func TestSave_KeepsValidJSON(t *testing.T) {
	path := writeTempConfig(t, "configuration.json", sampleJSON)
	mgr, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := mgr.SaveUserSettings(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
}
