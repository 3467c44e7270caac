package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"run-1", true},
		{"2024.06.01_a", true},
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc", false},
		{"a/b", false},
		{`a\b`, false},
		{"has space", false},
	}
	for _, tt := range tests {
		if err := ValidateRunID(tt.id); (err == nil) != tt.ok {
			t.Errorf("ValidateRunID(%q) = %v, want ok=%v", tt.id, err, tt.ok)
		}
	}
}

func TestURL(t *testing.T) {
	if got := URL("abc", InitialScreenshot); got != "/artifacts/runs/abc/01_initial.png" {
		t.Errorf("URL = %q", got)
	}
	s := NewStore("/somewhere/else")
	if got := s.URL("abc", ScrolledScreenshot); got != "/artifacts/runs/abc/02_scrolled.png" {
		t.Errorf("Store.URL = %q", got)
	}
}

func TestStore_PathCreatesRunDir(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	p, err := s.Path("run-1", InitialScreenshot)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "runs", "run-1", InitialScreenshot); p != want {
		t.Errorf("Path = %q, want %q", p, want)
	}
	if info, err := os.Stat(filepath.Dir(p)); err != nil || !info.IsDir() {
		t.Errorf("run dir not created: %v", err)
	}

	if _, err := s.Path("../escape", InitialScreenshot); err == nil {
		t.Error("expected error for traversal run id")
	}
	if _, err := s.Path("run-1", "../x.png"); err == nil {
		t.Error("expected error for traversal filename")
	}
}

func TestStore_Open(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Path("run-1", InitialScreenshot)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Open("run-1", InitialScreenshot)
	if err != nil || got != p {
		t.Errorf("Open = %q, %v", got, err)
	}

	for _, c := range [][2]string{
		{"run-1", ScrolledScreenshot},
		{"run-2", InitialScreenshot},
		{"..", "runs"},
		{"run-1", ".."},
	} {
		if _, err := s.Open(c[0], c[1]); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q, %q) = %v, want ErrNotFound", c[0], c[1], err)
		}
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore(t.TempDir())
	p, err := s.Path("run-1", InitialScreenshot)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove("run-1", InitialScreenshot, ScrolledScreenshot); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if err := s.Remove("never-ran", InitialScreenshot); err != nil {
		t.Errorf("missing run should not error: %v", err)
	}
	if err := s.Remove("../x", InitialScreenshot); err == nil {
		t.Error("expected error for invalid run id")
	}
}
