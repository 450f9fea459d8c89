package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/maruel/docstore/internal/models"
)

// fakeServer answers every line with reply(line) until the client leaves.
func fakeServer(t *testing.T, reply func(req map[string]any) string) (string, <-chan map[string]any) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	seen := make(chan map[string]any, 16)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		sc := bufio.NewScanner(c)
		for sc.Scan() {
			if sc.Text() == "exit" {
				close(seen)
				return
			}
			var req map[string]any
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				req = map[string]any{"raw": sc.Text()}
			}
			seen <- req
			if out := reply(req); out != "" {
				if _, err := c.Write([]byte(out + "\n")); err != nil {
					return
				}
			}
		}
	}()
	return ln.Addr().String(), seen
}

func TestClientRequests(t *testing.T) {
	ctx := t.Context()
	addr, seen := fakeServer(t, func(map[string]any) string {
		return `{"status":"success","message":"2 documents found","data":[{"_id":"a","n":1},{"_id":"b","n":12345678901234567890}],"count":2}`
	})
	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	c.SetToken("tok")

	resp, err := c.Find(ctx, "db", "coll", map[string]any{"n": map[string]any{"$gt": 0}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.StatusSuccess || resp.Count != 2 || resp.Data[1]["n"] != json.Number("12345678901234567890") {
		t.Errorf("resp = %+v", resp)
	}
	req := <-seen
	if req["operation"] != "find" || req["token"] != "tok" || req["database"] != "db" {
		t.Errorf("request = %v", req)
	}
	if q, ok := req["query"].(map[string]any); !ok || q["n"] == nil {
		t.Errorf("query = %v", req["query"])
	}

	if _, err := c.Insert(ctx, "db", "coll", `{"x":true}`); err != nil {
		t.Fatal(err)
	}
	req = <-seen
	if d, ok := req["data"].(map[string]any); !ok || d["x"] != true {
		t.Errorf("insert request = %v", req)
	}

	if _, err := c.Drop(ctx, "db", "coll"); err != nil {
		t.Fatal(err)
	}
	req = <-seen
	if req["operation"] != "drop" || req["query"] != nil || req["data"] != nil {
		t.Errorf("drop request = %v", req)
	}

	if _, err := c.Raw(ctx, []byte("hello\r\n")); err != nil {
		t.Fatal(err)
	}
	if req = <-seen; req["raw"] != "hello" {
		t.Errorf("raw request = %v", req)
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-seen; ok {
		t.Error("server did not receive exit")
	}
}

func TestClientContextCancel(t *testing.T) {
	addr, _ := fakeServer(t, func(map[string]any) string { return "" })
	c, err := Dial(t.Context(), addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Delete(ctx, "db", "c", `{}`); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Delete() = %v, want deadline exceeded", err)
	}
}

func TestClientBadResponse(t *testing.T) {
	addr, _ := fakeServer(t, func(map[string]any) string { return "not json" })
	c, err := Dial(t.Context(), addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Find(t.Context(), "db", "c", `{}`); err == nil {
		t.Error("expected decode error")
	}
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	if _, err := Dial(t.Context(), addr); err == nil {
		t.Error("expected error")
	}
}

func TestClientBrokenAfterTimeout(t *testing.T) {
	// The server answers the first request after the client gave up, in two
	// writes, then answers promptly.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		sc := bufio.NewScanner(c)
		for n := 0; sc.Scan(); n++ {
			if n == 0 {
				_, _ = c.Write([]byte(`{"status":"success","mess`))
				time.Sleep(100 * time.Millisecond)
				_, _ = c.Write([]byte(`age":"late"}` + "\n"))
				continue
			}
			_, _ = c.Write([]byte(`{"status":"success","message":"second"}` + "\n"))
		}
	}()
	c, err := Dial(t.Context(), ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Drop(ctx, "db", "c"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drop() = %v, want deadline exceeded", err)
	}
	resp, err := c.Drop(t.Context(), "db", "c")
	if !errors.Is(err, ErrBroken) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drop() after timeout = %+v, %v, want ErrBroken", resp, err)
	}
}
