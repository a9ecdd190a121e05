package config

import "testing"

func TestSetAndGetConfig(t *testing.T) {
	original := GetConfig()
	t.Cleanup(func() { SetConfig(original) })

	cfg := DefaultConfig()
	SetConfig(cfg)

	if got := GetConfig(); got != cfg {
		t.Error("GetConfig() should return the instance passed to SetConfig")
	}
	if got := MustGetConfig(); got != cfg {
		t.Error("MustGetConfig() should return the instance passed to SetConfig")
	}
}

func TestMustGetConfigPanics(t *testing.T) {
	original := GetConfig()
	t.Cleanup(func() { SetConfig(original) })
	SetConfig(nil)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() should panic when uninitialized")
		}
	}()
	MustGetConfig()
}
