package texts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tpl  string
		kv   []string
		want string
	}{
		{"no placeholders", "hello", []string{"name", "x"}, "hello"},
		{"single", "hi {name}", []string{"name", "Bob"}, "hi Bob"},
		{"multiple", "{a}+{b}", []string{"a", "1", "b", "2"}, "1+2"},
		{"repeated", "{n} and {n}", []string{"n", "x"}, "x and x"},
		{"unknown left intact", "hi {other}", []string{"name", "Bob"}, "hi {other}"},
		{"no kv", "hi {name}", nil, "hi {name}"},
		{"odd kv ignored", "hi {name}", []string{"name"}, "hi {name}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tpl, tt.kv...); got != tt.want {
				t.Errorf("Render(%q, %v) = %q, want %q", tt.tpl, tt.kv, got, tt.want)
			}
		})
	}
}

func TestManagerDefaultsWithoutPath(t *testing.T) {
	t.Parallel()
	m := NewManager("")

	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Snapshot().Errors.Banned; got == "" {
		t.Error("defaults not active without a texts file")
	}
}

func TestLoadPartialFileBackfills(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "texts.yaml")
	content := "errors:\n  banned: \"Custom ban text.\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := m.Snapshot()
	if got.Errors.Banned != "Custom ban text." {
		t.Errorf("banned = %q, want custom value", got.Errors.Banned)
	}
	if got.Errors.UserNotFound != Defaults().Errors.UserNotFound {
		t.Errorf("user_notfound = %q, want default backfill", got.Errors.UserNotFound)
	}
	if got.Admin.UserInfo == "" {
		t.Error("nested defaults not backfilled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))

	if err := m.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
	// Defaults remain live after a failed load.
	if m.Snapshot().Errors.Banned == "" {
		t.Error("snapshot lost after failed load")
	}
}
