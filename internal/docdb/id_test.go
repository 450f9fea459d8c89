package docdb

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimestampGenerator(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		at := time.UnixMilli(1763888722455)
		g := NewTimestampGenerator()
		g.Now = func() time.Time { return at }
		for range 200 {
			id := g.NewID()
			ms, suffix, ok := strings.Cut(id, "_")
			if !ok {
				t.Fatalf("NewID() = %q, missing separator", id)
			}
			if ms != "1763888722455" {
				t.Errorf("time part = %q", ms)
			}
			n, err := strconv.Atoi(suffix)
			if err != nil || n < 0 || n > maxRandomSuffix {
				t.Errorf("random part = %q", suffix)
			}
		}
	})

	t.Run("time is non-decreasing", func(t *testing.T) {
		g := NewTimestampGenerator()
		last := int64(0)
		for range 1000 {
			ms, _, _ := strings.Cut(g.NewID(), "_")
			v, err := strconv.ParseInt(ms, 10, 64)
			if err != nil {
				t.Fatal(err)
			}
			if v < last {
				t.Fatalf("time went backwards: %d < %d", v, last)
			}
			last = v
		}
	})

	t.Run("concurrent use", func(t *testing.T) {
		g := &TimestampGenerator{}
		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				for range 100 {
					if g.NewID() == "" {
						t.Error("empty id")
					}
				}
			})
		}
		wg.Wait()
	})
}

func TestKSIDGenerator(t *testing.T) {
	g := KSIDGenerator{}
	seen := make(map[string]struct{})
	for range 1000 {
		id := g.NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewIDGenerator(t *testing.T) {
	for _, scheme := range []string{"", "timestamp", "ksid"} {
		if _, err := NewIDGenerator(scheme); err != nil {
			t.Errorf("NewIDGenerator(%q): %v", scheme, err)
		}
	}
	if _, err := NewIDGenerator("uuid"); err == nil {
		t.Error("NewIDGenerator(uuid) succeeded")
	}
}
