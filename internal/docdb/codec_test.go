package docdb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		c, err := Load(filepath.Join(t.TempDir(), "nope.json"), 0)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
	})

	corrupt := []struct {
		name    string
		content string
	}{
		{"garbage", `{{{`},
		{"object", `{"_id":"a"}`},
		{"element not object", `[1]`},
		{"missing id", `[{"name":"x"}]`},
		{"numeric id", `[{"_id":3}]`},
		{"truncated", `[{"_id":"a"},`},
	}
	for _, tt := range corrupt {
		t.Run("corrupt "+tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			c, err := Load(path, 0)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Load err = %v, want ErrCorrupt", err)
			}
			if c == nil || c.Len() != 0 {
				t.Fatalf("Load should return an empty collection, got %v", c)
			}
			// The corrupt file is left in place.
			data, err := os.ReadFile(path)
			if err != nil || string(data) != tt.content {
				t.Errorf("corrupt file was modified: %q, %v", data, err)
			}
		})
	}

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.json")
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path, 0)
		if err != nil || c.Len() != 0 {
			t.Errorf("Load = %v, %v", c, err)
		}
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.json")
	orig := NewCollection(2)
	docs := []string{
		`{"_id":"1700000000000_1","name":"Alice","age":25,"big":12345678901234567890}`,
		`{"_id":"1700000000000_2","name":"Bob","tags":["x",{"y":null}],"ok":true}`,
		`{"_id":"1700000000001_3","price":1.5e3,"nested":{"a":{"b":[1,2,3]}}}`,
	}
	for _, s := range docs {
		d := mustDoc(t, s)
		orig.Put(d.ID(), d)
	}

	if err := Save(path, orig); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Save(path, loaded); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	again, err := Load(path, 0)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if again.Len() != orig.Len() {
		t.Fatalf("Len() = %d, want %d", again.Len(), orig.Len())
	}
	for id, want := range orig.All() {
		got, ok := again.Get(id)
		if !ok {
			t.Errorf("missing %s", id)
			continue
		}
		if !Equal(map[string]any(got), map[string]any(want)) {
			t.Errorf("%s = %v, want %v", id, got, want)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "12345678901234567890") {
		t.Errorf("large integer was not preserved:\n%s", data)
	}
	if i, j := strings.Index(string(data), "_1\""), strings.Index(string(data), "_3\""); i > j {
		t.Errorf("documents are not sorted by id:\n%s", data)
	}
}

func TestSaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.json")
	if err := Save(path, NewCollection(0)); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("got %q, want []", data)
	}
}
