// Records every flushed collection file as a git commit using go-git.

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies the committer of history entries.
type Author struct {
	Name  string
	Email string
}

// Commit is one history entry.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// History is a git repository rooted at the data directory.
type History struct {
	fs     *FileStore
	author Author
	repo   *gogit.Repository
	mu     sync.Mutex
}

// OpenHistory opens the git repository at the root of fs, initializing it
// if needed.
func OpenHistory(fs *FileStore, author Author) (*History, error) {
	if author.Name == "" {
		author.Name = "docstore"
	}
	if author.Email == "" {
		author.Email = "docstore@localhost"
	}
	repo, err := gogit.PlainOpen(fs.RootDir())
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		repo, err = gogit.PlainInit(fs.RootDir(), false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = author.Name
		cfg.User.Email = author.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &History{fs: fs, author: author, repo: repo}, nil
}

// ErrNoHistory is returned by [ReadHistory] when the data root is not a git
// repository.
var ErrNoHistory = errors.New("history not enabled")

// ReadHistory opens the existing git repository at the root of fs for
// reading. Unlike OpenHistory it never creates one.
func ReadHistory(fs *FileStore) (*History, error) {
	repo, err := gogit.PlainOpen(fs.RootDir())
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", fs.RootDir(), ErrNoHistory)
		}
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	return &History{fs: fs, repo: repo}, nil
}

// Commit stages files, given as absolute paths under the data root, and
// commits them with msg. Deleted files are staged as removals. Nothing is
// committed when the files are unchanged.
func (h *History) Commit(_ context.Context, files []string, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		rel, err := filepath.Rel(h.fs.RootDir(), f)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("%s is outside of the data directory", f)
		}
		rel = filepath.ToSlash(rel)
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			if _, err := w.Remove(rel); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return fmt.Errorf("failed to stage removal of %s: %w", rel, err)
			}
			continue
		}
		if _, err := w.Add(rel); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if !hasStaged(status) {
		return nil
	}
	sig := &object.Signature{Name: h.author.Name, Email: h.author.Email, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func hasStaged(status gogit.Status) bool {
	for _, fs := range status {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}

// FlushHook returns a hook committing the flushed collection file.
func (h *History) FlushHook() FlushHook {
	return func(ctx context.Context, db, coll, path string) error {
		verb := "update"
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			verb = "drop"
		}
		return h.Commit(ctx, []string{path}, fmt.Sprintf("%s: %s/%s", verb, db, coll))
	}
}

// Log returns up to n of the most recent commits touching a collection.
func (h *History) Log(_ context.Context, db, coll string, n int) ([]Commit, error) {
	if n <= 0 {
		n = 100
	}
	rel := filepath.ToSlash(filepath.Join(db, coll+collectionExt))
	h.mu.Lock()
	defer h.mu.Unlock()
	iter, err := h.repo.Log(&gogit.LogOptions{FileName: &rel})
	if err != nil {
		// No commits yet.
		return nil, nil
	}
	defer iter.Close()
	var out []Commit
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		out = append(out, Commit{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return out, nil
}
