package config

import "testing"

func TestEnvBoolParsesTruthyValues(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", "t", "yes", "Y", "on"}
	for _, v := range truthy {
		t.Setenv("MUUFIN_TEST_BOOL", v)
		if !envBool("MUUFIN_TEST_BOOL", false) {
			t.Errorf("Expected %q to parse as true", v)
		}
	}
}

func TestEnvBoolParsesFalsyValues(t *testing.T) {
	falsy := []string{"0", "false", "no", "off", "garbage"}
	for _, v := range falsy {
		t.Setenv("MUUFIN_TEST_BOOL", v)
		if envBool("MUUFIN_TEST_BOOL", true) {
			t.Errorf("Expected %q to parse as false", v)
		}
	}
}

func TestEnvBoolDefaultWhenUnset(t *testing.T) {
	if !envBool("MUUFIN_TEST_BOOL_UNSET", true) {
		t.Error("Expected default true when variable is unset")
	}
	if envBool("MUUFIN_TEST_BOOL_UNSET", false) {
		t.Error("Expected default false when variable is unset")
	}
}

func TestLoadRemoteControlToggle(t *testing.T) {
	t.Setenv("MUUFIN_SQLITE_PATH", t.TempDir()+"/muufin.db")

	cfg := Load()
	if !cfg.RemoteControlEnabled {
		t.Error("Expected remote control enabled by default")
	}

	t.Setenv("MUUFIN_REMOTE_CONTROL", "false")
	cfg = Load()
	if cfg.RemoteControlEnabled {
		t.Error("Expected MUUFIN_REMOTE_CONTROL=false to disable remote control")
	}
}
