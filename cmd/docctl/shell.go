package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maruel/docstore/internal/models"
)

// docClient is the subset of client.Client used by the shell.
type docClient interface {
	Insert(ctx context.Context, db, coll string, doc any) (*models.Response, error)
	Find(ctx context.Context, db, coll string, query any) (*models.Response, error)
	Delete(ctx context.Context, db, coll string, query any) (*models.Response, error)
	Drop(ctx context.Context, db, coll string) (*models.Response, error)
}

type command struct {
	op   models.Operation
	coll string
	arg  string
}

var errExit = errors.New("exit")

// parseCommand parses one shell line: "INSERT <coll> <json>",
// "FIND <coll> <json>", "DELETE <coll> <json>", "DROP <coll>" or "exit".
// Keywords are case insensitive.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return command{}, errExit
	}
	kw, rest, _ := strings.Cut(line, " ")
	coll, arg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	arg = strings.TrimSpace(arg)
	c := command{op: models.Operation(strings.ToLower(kw)), coll: coll, arg: arg}
	switch c.op {
	case models.OpInsert, models.OpFind, models.OpDelete, models.OpDrop:
	default:
		return command{}, fmt.Errorf("unknown command %q", kw)
	}
	if c.coll == "" {
		return command{}, fmt.Errorf("%s: missing collection", strings.ToUpper(kw))
	}
	if c.op == models.OpDrop {
		if c.arg != "" {
			return command{}, errors.New("usage: DROP <collection>")
		}
		return c, nil
	}
	if c.arg == "" {
		return command{}, fmt.Errorf("usage: %s <collection> <json>", strings.ToUpper(kw))
	}
	if !json.Valid([]byte(c.arg)) {
		return command{}, fmt.Errorf("invalid JSON: %s", c.arg)
	}
	return c, nil
}

func (c command) run(ctx context.Context, cl docClient, db string) (*models.Response, error) {
	switch c.op {
	case models.OpInsert:
		return cl.Insert(ctx, db, c.coll, c.arg)
	case models.OpFind:
		return cl.Find(ctx, db, c.coll, c.arg)
	case models.OpDelete:
		return cl.Delete(ctx, db, c.coll, c.arg)
	default:
		return cl.Drop(ctx, db, c.coll)
	}
}

// runShell executes commands read from in against database db until exit or
// end of input. Usage errors are reported and the shell continues; transport
// errors end it.
func runShell(ctx context.Context, in io.Reader, out io.Writer, cl docClient, db, prompt string) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(nil, 1<<20)
	for {
		if prompt != "" {
			_, _ = fmt.Fprint(out, prompt)
		}
		if !sc.Scan() {
			return sc.Err()
		}
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		cmd, err := parseCommand(sc.Text())
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintln(out, err)
			continue
		}
		resp, err := cmd.run(ctx, cl, db)
		if err != nil {
			return err
		}
		printResponse(out, resp)
	}
}

func printResponse(w io.Writer, resp *models.Response) {
	if resp.Status == models.StatusError {
		_, _ = fmt.Fprintf(w, "error (%s): %s\n", resp.Code, resp.Message)
		return
	}
	_, _ = fmt.Fprintln(w, resp.Message)
	for _, doc := range resp.Data {
		b, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\n", b)
	}
}
