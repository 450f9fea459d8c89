package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maruel/docstore/internal/docdb"
	apierrors "github.com/maruel/docstore/internal/errors"
)

// slowOperation is the duration after which an operation is logged as slow.
const slowOperation = 5 * time.Second

// maxIDAttempts bounds the number of identifiers tried for one insert.
const maxIDAttempts = 16

// Locker is a reader/writer lock. *sync.RWMutex implements it.
type Locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// FlushHook is called after a collection file has been written or removed,
// while the database write lock is still held.
type FlushHook func(ctx context.Context, db, coll, path string) error

// Options configures a Registry.
type Options struct {
	// InitialCapacity is the starting bucket count of new collections.
	InitialCapacity int
	// IDs generates document identifiers. Defaults to a TimestampGenerator.
	IDs docdb.IDGenerator
	// NewLocker creates the lock of a database. Defaults to a sync.RWMutex.
	NewLocker func() Locker
	// OnLoad is called each time a collection is read from disk.
	OnLoad func(db, coll string, docs int, err error)
	// OnFlush hooks run in order after every successful flush.
	OnFlush []FlushHook
}

type collectionKey struct {
	db   string
	coll string
}

// Registry owns every in-memory collection and serializes access to them.
//
// Each database has one reader/writer lock. Find holds it shared; Insert,
// Delete, Drop and Evict hold it exclusively and write the collection file
// before releasing it. Collections are loaded on first access and stay
// cached until dropped or evicted.
type Registry struct {
	fs   *FileStore
	opts Options

	mu    sync.Mutex
	locks map[string]Locker
	cache map[collectionKey]*docdb.Collection
}

// Stats is a snapshot of the registry content.
type Stats struct {
	Databases   int `json:"databases"`
	Collections int `json:"collections"`
}

// NewRegistry returns a Registry persisting to fs.
func NewRegistry(fs *FileStore, opts Options) *Registry {
	if opts.InitialCapacity <= 0 {
		opts.InitialCapacity = docdb.DefaultCapacity
	}
	if opts.IDs == nil {
		opts.IDs = docdb.NewTimestampGenerator()
	}
	if opts.NewLocker == nil {
		opts.NewLocker = func() Locker { return &sync.RWMutex{} }
	}
	return &Registry{
		fs:    fs,
		opts:  opts,
		locks: make(map[string]Locker),
		cache: make(map[collectionKey]*docdb.Collection),
	}
}

// FileStore returns the underlying file layout.
func (r *Registry) FileStore() *FileStore {
	return r.fs
}

// AddFlushHook appends a hook run after every flush.
//
// It must be called before the registry is used concurrently.
func (r *Registry) AddFlushHook(h FlushHook) {
	r.opts.OnFlush = append(r.opts.OnFlush, h)
}

// Insert stores a copy of doc under a freshly generated identifier and
// returns the stored document. Any "_id" in doc is replaced.
func (r *Registry) Insert(ctx context.Context, db, coll string, doc docdb.Document) (docdb.Document, error) {
	if err := validate(db, coll); err != nil {
		return nil, err
	}
	defer r.timed(ctx, "insert", db, coll)()
	l := r.lock(db)
	l.Lock()
	defer l.Unlock()
	c, err := r.acquire(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	id, err := r.newID(c)
	if err != nil {
		return nil, err
	}
	stored := doc.Clone()
	if stored == nil {
		stored = docdb.Document{}
	}
	stored[docdb.IDField] = id
	c.Put(id, stored)
	if err := r.flush(ctx, db, coll, c); err != nil {
		c.Delete(id)
		return nil, err
	}
	return stored.Clone(), nil
}

// Find returns copies of the documents of the collection matching f. A nil
// filter matches everything.
func (r *Registry) Find(ctx context.Context, db, coll string, f *docdb.Filter) ([]docdb.Document, error) {
	if err := validate(db, coll); err != nil {
		return nil, err
	}
	defer r.timed(ctx, "find", db, coll)()
	l := r.lock(db)
	l.RLock()
	defer l.RUnlock()
	c, err := r.acquire(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	var out []docdb.Document
	for _, doc := range c.All() {
		if f.Match(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// Delete removes the documents of the collection matching f and returns
// them. The file is only rewritten when something was removed.
func (r *Registry) Delete(ctx context.Context, db, coll string, f *docdb.Filter) ([]docdb.Document, error) {
	if err := validate(db, coll); err != nil {
		return nil, err
	}
	defer r.timed(ctx, "delete", db, coll)()
	l := r.lock(db)
	l.Lock()
	defer l.Unlock()
	c, err := r.acquire(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	var removed []docdb.Document
	for id, doc := range c.All() {
		if f.Match(doc) {
			c.Delete(id)
			removed = append(removed, doc)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := r.flush(ctx, db, coll, c); err != nil {
		for _, doc := range removed {
			c.Put(doc.ID(), doc)
		}
		return nil, err
	}
	return removed, nil
}

// Drop deletes the collection file and its cached copy.
func (r *Registry) Drop(ctx context.Context, db, coll string) error {
	if err := validate(db, coll); err != nil {
		return err
	}
	defer r.timed(ctx, "drop", db, coll)()
	l := r.lock(db)
	l.Lock()
	defer l.Unlock()
	k := collectionKey{db, coll}
	r.mu.Lock()
	delete(r.cache, k)
	r.mu.Unlock()
	if err := r.fs.Remove(db, coll); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apierrors.NotFound(fmt.Sprintf("collection %s/%s does not exist", db, coll))
		}
		return apierrors.Storage("failed to drop collection", err)
	}
	slog.InfoContext(ctx, "Dropped collection", "db", db, "collection", coll)
	r.runHooks(ctx, db, coll)
	return nil
}

// Evict forgets the cached copy of a collection without touching its file.
// It reports whether an entry was present.
func (r *Registry) Evict(ctx context.Context, db, coll string) bool {
	l := r.lock(db)
	l.Lock()
	defer l.Unlock()
	k := collectionKey{db, coll}
	r.mu.Lock()
	_, ok := r.cache[k]
	delete(r.cache, k)
	r.mu.Unlock()
	if ok {
		slog.InfoContext(ctx, "Evicted collection", "db", db, "collection", coll)
	}
	return ok
}

// Stats returns the number of databases seen and collections cached.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Databases: len(r.locks), Collections: len(r.cache)}
}

// lock returns the lock of db, creating it on first use.
func (r *Registry) lock(db string) Locker {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[db]
	if !ok {
		l = r.opts.NewLocker()
		r.locks[db] = l
	}
	return l
}

// acquire returns the cached collection, loading it from disk if needed.
//
// The caller holds the database lock in either mode. Concurrent readers may
// load the same file; the first one to publish wins.
func (r *Registry) acquire(ctx context.Context, db, coll string) (*docdb.Collection, error) {
	k := collectionKey{db, coll}
	r.mu.Lock()
	c, ok := r.cache[k]
	r.mu.Unlock()
	if ok {
		return c, nil
	}
	c, err := docdb.Load(r.fs.CollectionPath(db, coll), r.opts.InitialCapacity)
	if r.opts.OnLoad != nil {
		n := 0
		if c != nil {
			n = c.Len()
		}
		r.opts.OnLoad(db, coll, n, err)
	}
	if err != nil {
		if !errors.Is(err, docdb.ErrCorrupt) {
			return nil, apierrors.Storage("failed to load collection", err)
		}
		slog.WarnContext(ctx, "Ignoring corrupt collection file", "db", db, "collection", coll, "err", err)
	} else {
		slog.DebugContext(ctx, "Loaded collection", "db", db, "collection", coll, "count", c.Len())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[k]; ok {
		return existing, nil
	}
	r.cache[k] = c
	return c, nil
}

// flush writes the collection file. The caller holds the write lock.
func (r *Registry) flush(ctx context.Context, db, coll string, c *docdb.Collection) error {
	if err := r.fs.EnsureDatabase(db); err != nil {
		return apierrors.Storage("failed to save collection", err)
	}
	if err := docdb.Save(r.fs.CollectionPath(db, coll), c); err != nil {
		return apierrors.Storage("failed to save collection", err)
	}
	r.runHooks(ctx, db, coll)
	return nil
}

func (r *Registry) runHooks(ctx context.Context, db, coll string) {
	path := r.fs.CollectionPath(db, coll)
	for _, h := range r.opts.OnFlush {
		if err := h(ctx, db, coll, path); err != nil {
			slog.WarnContext(ctx, "Flush hook failed", "db", db, "collection", coll, "err", err)
		}
	}
}

func (r *Registry) newID(c *docdb.Collection) (string, error) {
	for range maxIDAttempts {
		if id := r.opts.IDs.NewID(); !c.Has(id) {
			return id, nil
		}
	}
	return "", apierrors.Internal("failed to generate a unique identifier", nil)
}

func (r *Registry) timed(ctx context.Context, op, db, coll string) func() {
	start := time.Now()
	return func() {
		if d := time.Since(start); d > slowOperation {
			slog.WarnContext(ctx, "Slow operation", "op", op, "db", db, "collection", coll, "dur", d)
		}
	}
}

func validate(db, coll string) error {
	if err := ValidateName(db); err != nil {
		return apierrors.InvalidName("database", db).Wrap(err)
	}
	if err := ValidateName(coll); err != nil {
		return apierrors.InvalidName("collection", coll).Wrap(err)
	}
	return nil
}
