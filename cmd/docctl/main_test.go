package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/docstore/internal/storage"
)

func TestPrintAndRemove(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "shop"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "shop", "users.json")
	if err := os.WriteFile(path, []byte(`[{"_id":"b","n":2},{"_id":"a","n":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := mainImpl([]string{"print", "-data-dir", dir, "shop", "users"}, nil, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if a, b := strings.Index(got, `"a"`), strings.Index(got, `"b"`); a < 0 || b < 0 || a > b {
		t.Errorf("print = %q", got)
	}

	if err := mainImpl([]string{"print", "-data-dir", dir, "shop", "missing"}, nil, &out); err == nil {
		t.Error("expected error for missing collection")
	}
	if err := mainImpl([]string{"print", "-data-dir", dir, "../x", "users"}, nil, &out); err == nil {
		t.Error("expected error for invalid name")
	}
	if err := mainImpl([]string{"print", "-data-dir", dir, "shop"}, nil, &out); err == nil {
		t.Error("expected error for missing argument")
	}

	out.Reset()
	if err := mainImpl([]string{"remove", "-data-dir", dir, "shop", "users"}, nil, &out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if err := mainImpl([]string{"remove", "-data-dir", dir, "shop", "users"}, nil, &out); err == nil {
		t.Error("expected error removing twice")
	}
}

func TestToken(t *testing.T) {
	secret := strings.Repeat("s", 32)
	var out bytes.Buffer
	if err := mainImpl([]string{"token", "-secret", secret, "-db", "a,b", "-ro", "-ttl", "1h"}, nil, &out); err != nil {
		t.Fatal(err)
	}
	tok := strings.TrimSpace(out.String())
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("token = %q", tok)
	}
	if err := mainImpl([]string{"token", "-secret", ""}, nil, &out); err == nil {
		t.Error("expected error without secret")
	}
}

func TestSchemaAndUsage(t *testing.T) {
	var out bytes.Buffer
	if err := mainImpl([]string{"schema"}, nil, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"request"`) || !strings.Contains(out.String(), `"response"`) {
		t.Errorf("schema = %q", out.String())
	}
	if err := mainImpl(nil, nil, &out); err == nil {
		t.Error("expected usage error")
	}
	if err := mainImpl([]string{"frobnicate"}, nil, &out); err == nil {
		t.Error("expected unknown command error")
	}
	if err := mainImpl([]string{"shell"}, nil, &out); err == nil {
		t.Error("expected error without -database")
	}
}

func TestHistoryWithoutRepository(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	err := mainImpl([]string{"history", "-data-dir", dir, "shop", "users"}, nil, &out)
	if !errors.Is(err, storage.ErrNoHistory) {
		t.Fatalf("history = %v, want ErrNoHistory", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); !os.IsNotExist(err) {
		t.Errorf("history created a repository: %v", err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"shop/users.json", "shop/orders.json", "shop/notes.txt", "logs/events.json"} {
		p = filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"list", "-data-dir", dir}, "logs\nshop\n"},
		{[]string{"list", "-data-dir", dir, "shop"}, "orders\nusers\n"},
		{[]string{"list", "-data-dir", dir, "missing"}, ""},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if err := mainImpl(tt.args, nil, &out); err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if out.String() != tt.want {
			t.Errorf("%v = %q, want %q", tt.args, out.String(), tt.want)
		}
	}
	if err := mainImpl([]string{"list", "-data-dir", dir, "a", "b"}, nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for two arguments")
	}
}
