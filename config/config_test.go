package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "aprs:\n  callsign: N0CALL\n"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.APRS.Host != "rotate.aprs.net" || cfg.APRS.Port != 14580 {
		t.Fatalf("feed defaults = %s:%d, want rotate.aprs.net:14580", cfg.APRS.Host, cfg.APRS.Port)
	}
	if cfg.APRS.Passcode != "-1" {
		t.Fatalf("passcode default = %q, want -1", cfg.APRS.Passcode)
	}
	if cfg.Traccar.OsmAndURL != "http://traccar:8082" {
		t.Fatalf("osmand default = %q", cfg.Traccar.OsmAndURL)
	}
	if cfg.Bridge.DeviceKeyword != "aprs" || cfg.Bridge.PollIntervalSeconds != 60 {
		t.Fatalf("bridge defaults = %q/%d", cfg.Bridge.DeviceKeyword, cfg.Bridge.PollIntervalSeconds)
	}
}

func TestLoadParsesFileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
aprs:
  callsign: S53ZO-10
  host: euro.aprs2.net
traccar:
  osmand_url: http://tracker.example.org:5055
  api_url: http://tracker.example.org:8082
  user: admin
bridge:
  device_keyword: callsign
  poll_interval_seconds: 15
`))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.APRS.Callsign != "S53ZO-10" || cfg.APRS.Host != "euro.aprs2.net" {
		t.Fatalf("aprs section = %+v", cfg.APRS)
	}
	if cfg.Traccar.APIURL != "http://tracker.example.org:8082" {
		t.Fatalf("api url = %q", cfg.Traccar.APIURL)
	}
	if cfg.Bridge.DeviceKeyword != "callsign" || cfg.Bridge.PollIntervalSeconds != 15 {
		t.Fatalf("bridge section = %+v", cfg.Bridge)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("CALLSIGN", "KD9ABC")
	t.Setenv("APRS_HOST", "noam.aprs2.net")
	t.Setenv("TRACCAR_HOST", "http://localhost:8082")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.LoadedFrom != "defaults" {
		t.Fatalf("LoadedFrom = %q, want defaults", cfg.LoadedFrom)
	}
	if cfg.APRS.Callsign != "KD9ABC" || cfg.APRS.Host != "noam.aprs2.net" {
		t.Fatalf("env overlay failed: %+v", cfg.APRS)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("CALLSIGN", "W1AW")
	t.Setenv("APRS_DEVICE_KEYWORD", "radio")

	cfg, err := Load(writeConfig(t, "aprs:\n  callsign: N0CALL\nbridge:\n  device_keyword: aprs\n"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.APRS.Callsign != "W1AW" {
		t.Fatalf("callsign = %q, want env value W1AW", cfg.APRS.Callsign)
	}
	if cfg.Bridge.DeviceKeyword != "radio" {
		t.Fatalf("keyword = %q, want env value radio", cfg.Bridge.DeviceKeyword)
	}
}

func TestValidateRequiresCallsign(t *testing.T) {
	t.Setenv("CALLSIGN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted empty callsign")
	}
}

func TestValidateDefaultsAPIURLToOsmAnd(t *testing.T) {
	cfg, err := Load(writeConfig(t, "aprs:\n  callsign: N0CALL\ntraccar:\n  osmand_url: http://t:5055\n"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Traccar.APIURL != "http://t:5055" {
		t.Fatalf("api url = %q, want osmand fallback", cfg.Traccar.APIURL)
	}
}
