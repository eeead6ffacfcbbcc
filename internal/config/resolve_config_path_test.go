package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tunnelmesh/relay/internal/config"
)

func TestResolveConfigPath_PrefersProjectRootConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".tunnelmesh"), 0o755); err != nil {
		t.Fatalf("mkdir .tunnelmesh: %v", err)
	}
	cfgPath := filepath.Join(root, ".tunnelmesh", "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("listen: \":8088\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	sub := filepath.Join(root, "nested", "dir")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got := config.ResolveConfigPath("")
	if got != cfgPath {
		t.Fatalf("expected %q, got %q", cfgPath, got)
	}
}

func TestResolveConfigPath_ExplicitOverridesDiscovery(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	got := config.ResolveConfigPath(explicit)
	if got != explicit {
		t.Fatalf("expected explicit path %q to win, got %q", explicit, got)
	}
}

func TestResolveConfigPath_FallsBackToHomeWhenNoProjectConfigFound(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got := config.ResolveConfigPath("")
	want := filepath.Join(home, ".tunnelmesh", "config.yaml")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
