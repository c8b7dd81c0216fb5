package localfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveAndOpen(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := "2026/10/15/abc_loans.csv"
	if err := s.Save(context.Background(), key, strings.NewReader("a,b\n1,2\n")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := s.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestRejectsKeysOutsideBase(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../escape.csv", "/etc/passwd", "a/../../b"} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}
