// Command docctl is the docstore client and offline administration tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/maruel/docstore/internal/client"
	"github.com/maruel/docstore/internal/docdb"
	"github.com/maruel/docstore/internal/models"
	"github.com/maruel/docstore/internal/server"
	"github.com/maruel/docstore/internal/storage"
	"github.com/maruel/docstore/internal/utils"
)

const usage = `usage: docctl <command> [flags] [args]

Commands:
  shell    interactive client: INSERT, FIND, DELETE, DROP <collection> [json]
  list     list databases, or the collections of one database
  print    print the documents of a collection file
  remove   delete a collection file
  history  list the commits touching a collection
  token    mint an access token
  schema   print the JSON Schema of the wire protocol
  version  print version
`

func main() {
	if err := mainImpl(os.Args[1:], os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "docctl: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string, stdin io.Reader, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	level := &slog.LevelVar{}
	level.Set(slog.LevelWarn)
	slog.SetDefault(utils.NewLogger(level))

	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Verbose logging")
	switch cmd {
	case "shell":
		addr := fs.String("addr", "localhost:8080", "Server address")
		db := fs.String("database", "", "Database to operate on")
		token := fs.String("token", "", "Access token")
		tokenURL := fs.String("token-url", "", "OAuth2 token endpoint issuing access tokens (client credentials grant)")
		clientID := fs.String("client-id", "docctl", "OAuth2 client ID")
		clientSecret := fs.String("client-secret", os.Getenv("DOCSTORE_CLIENT_SECRET"), "OAuth2 client secret")
		if err := parse(fs, args, 0, level, verbose); err != nil {
			return err
		}
		if *db == "" {
			return errors.New("-database is required")
		}
		if *token == "" && *tokenURL != "" {
			i := &client.Issuer{TokenURL: *tokenURL, ClientID: *clientID, ClientSecret: *clientSecret, Scopes: []string{*db}}
			tok, err := i.Token(ctx)
			if err != nil {
				return err
			}
			*token = tok
		}
		return shell(ctx, stdin, stdout, *addr, *db, *token)
	case "list":
		dataDir := fs.String("data-dir", "./data", "Data directory")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *verbose {
			level.Set(slog.LevelDebug)
		}
		if fs.NArg() > 1 {
			return fmt.Errorf("list: expected at most 1 argument, got %d", fs.NArg())
		}
		store, err := storage.NewFileStore(*dataDir)
		if err != nil {
			return err
		}
		return list(stdout, store, fs.Arg(0))
	case "print", "remove", "history":
		dataDir := fs.String("data-dir", "./data", "Data directory")
		n := fs.Int("n", 20, "Maximum number of commits (history)")
		if err := parse(fs, args, 2, level, verbose); err != nil {
			return err
		}
		store, err := storage.NewFileStore(*dataDir)
		if err != nil {
			return err
		}
		db, coll := fs.Arg(0), fs.Arg(1)
		for _, name := range []string{db, coll} {
			if err := storage.ValidateName(name); err != nil {
				return err
			}
		}
		switch cmd {
		case "print":
			return printCollection(stdout, store, db, coll)
		case "remove":
			if err := store.Remove(db, coll); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "removed %s/%s\n", db, coll)
			return nil
		default:
			return printHistory(ctx, stdout, store, db, coll, *n)
		}
	case "token":
		secret := fs.String("secret", os.Getenv("DOCSTORE_AUTH_SECRET"), "Signing secret")
		dbs := fs.String("db", "", "Comma separated databases; all when empty")
		ro := fs.Bool("ro", false, "Read only")
		sub := fs.String("sub", "docctl", "Subject")
		ttl := fs.Duration("ttl", 24*time.Hour, "Validity")
		if err := parse(fs, args, 0, level, verbose); err != nil {
			return err
		}
		var list []string
		if *dbs != "" {
			list = strings.Split(*dbs, ",")
		}
		tok, err := server.Mint([]byte(*secret), list, *ro, *sub, *ttl)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(stdout, tok)
		return nil
	case "schema":
		if err := parse(fs, args, 0, level, verbose); err != nil {
			return err
		}
		b, err := models.SchemaJSON()
		if err != nil {
			return err
		}
		_, err = stdout.Write(append(b, '\n'))
		return err
	case "version":
		utils.ReadBuildInfo().Print(stdout, "docctl")
		return nil
	case "help", "-h", "-help", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

// parse parses flags and checks that exactly nargs positional arguments
// remain.
func parse(fs *flag.FlagSet, args []string, nargs int, level *slog.LevelVar, verbose *bool) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		level.Set(slog.LevelDebug)
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("%s: expected %d arguments, got %d", fs.Name(), nargs, fs.NArg())
	}
	return nil
}

func shell(ctx context.Context, stdin io.Reader, stdout io.Writer, addr, db, token string) error {
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	c.SetToken(token)
	prompt := ""
	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		prompt = db + "> "
	}
	slog.DebugContext(ctx, "Connected", "addr", addr, "database", db)
	return runShell(ctx, stdin, stdout, c, db, prompt)
}

// list prints the databases of store, or the collections of db when set.
func list(w io.Writer, store *storage.FileStore, db string) error {
	var names []string
	var err error
	if db == "" {
		names, err = store.Databases()
	} else {
		if err = storage.ValidateName(db); err != nil {
			return err
		}
		names, err = store.Collections(db)
	}
	if err != nil {
		return err
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(w, n)
	}
	return nil
}

func printCollection(w io.Writer, store *storage.FileStore, db, coll string) error {
	path := store.CollectionPath(db, coll)
	if _, err := os.Stat(path); err != nil {
		return err
	}
	c, err := docdb.Load(path, 0)
	if err != nil {
		return err
	}
	b, err := docdb.Encode(c)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func printHistory(ctx context.Context, w io.Writer, store *storage.FileStore, db, coll string, n int) error {
	h, err := storage.ReadHistory(store)
	if err != nil {
		return err
	}
	commits, err := h.Log(ctx, db, coll, n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		_, _ = fmt.Fprintf(w, "%s %s %s\n", c.Hash[:min(len(c.Hash), 12)], c.When.Format(time.RFC3339), strings.TrimSpace(c.Message))
	}
	return nil
}
