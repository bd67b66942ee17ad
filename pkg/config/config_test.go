package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Mode  string `yaml:"mode"`
	Port  int    `yaml:"port"`
	Extra string `yaml:"extra"`
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("MW_NAME", "mailwright")
	t.Setenv("MW_EMPTY", "")

	var got sample
	data := []byte("name: ${MW_NAME}\nmode: ${MW_EMPTY:-disabled}\nport: 8080\nextra: ${MW_UNSET}\n")
	if err := Parse(data, &got); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Name != "mailwright" {
		t.Errorf("name = %q, want %q", got.Name, "mailwright")
	}
	if got.Mode != "disabled" {
		t.Errorf("mode = %q, want %q", got.Mode, "disabled")
	}
	if got.Extra != "" {
		t.Errorf("extra = %q, want empty", got.Extra)
	}
}

func TestParseKeepsDefaults(t *testing.T) {
	got := sample{Mode: "token", Port: 9000}
	if err := Parse([]byte("name: x\n"), &got); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Mode != "token" || got.Port != 9000 {
		t.Errorf("defaults lost: %+v", got)
	}
}

func TestParseRunsValidator(t *testing.T) {
	var got sample
	err := Parse([]byte("name: x\n"), &got)
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Errorf("err = %v, want validation failure", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "default.yaml")
	if err := os.WriteFile(fallback, []byte("port: 1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got sample
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), fallback, &got); err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if got.Port != 1234 {
		t.Errorf("port = %d, want 1234", got.Port)
	}

	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), "", &got); err == nil {
		t.Error("expected error without fallback")
	}
}
