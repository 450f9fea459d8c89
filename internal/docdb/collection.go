package docdb

import (
	"iter"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultCapacity is used when a non-positive capacity is requested.
	DefaultCapacity = 8

	// Grow when len/buckets exceeds maxLoadNum/maxLoadDen.
	maxLoadNum = 3
	maxLoadDen = 4
)

// Collection is a hash table mapping document IDs to documents.
//
// Buckets are singly linked chains. The bucket count is a power of two and
// only ever grows. Collection is not safe for concurrent use.
type Collection struct {
	buckets []*entry
	n       int
}

type entry struct {
	hash uint64
	id   string
	doc  Document
	next *entry
}

// NewCollection returns an empty collection sized for about capacity
// documents.
func NewCollection(capacity int) *Collection {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := 1
	for size*maxLoadNum/maxLoadDen < capacity {
		size <<= 1
	}
	return &Collection{buckets: make([]*entry, size)}
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	return c.n
}

// Cap returns the number of buckets.
func (c *Collection) Cap() int {
	return len(c.buckets)
}

// Put inserts or replaces the document stored under id. The collection takes
// ownership of doc.
func (c *Collection) Put(id string, doc Document) {
	h := xxhash.Sum64String(id)
	for e := c.buckets[c.index(h)]; e != nil; e = e.next {
		if e.hash == h && e.id == id {
			e.doc = doc
			return
		}
	}
	if (c.n+1)*maxLoadDen > len(c.buckets)*maxLoadNum {
		c.grow()
	}
	i := c.index(h)
	c.buckets[i] = &entry{hash: h, id: id, doc: doc, next: c.buckets[i]}
	c.n++
}

// Get returns a copy of the document stored under id.
func (c *Collection) Get(id string) (Document, bool) {
	if e := c.find(id); e != nil {
		return e.doc.Clone(), true
	}
	return nil, false
}

// Has reports whether id is present.
func (c *Collection) Has(id string) bool {
	return c.find(id) != nil
}

// Delete removes id and reports whether it was present.
func (c *Collection) Delete(id string) bool {
	h := xxhash.Sum64String(id)
	i := c.index(h)
	for p := &c.buckets[i]; *p != nil; p = &(*p).next {
		if e := *p; e.hash == h && e.id == id {
			*p = e.next
			c.n--
			return true
		}
	}
	return false
}

// All returns an iterator over every (id, document) pair in no particular
// order. The documents are the stored values, not copies; callers must not
// modify them.
//
// The set of entries is captured when iteration starts, so the collection
// may be modified from within the loop. The iterator can be reused.
func (c *Collection) All() iter.Seq2[string, Document] {
	return func(yield func(string, Document) bool) {
		snapshot := make([]*entry, 0, c.n)
		for _, e := range c.buckets {
			for ; e != nil; e = e.next {
				snapshot = append(snapshot, e)
			}
		}
		for _, e := range snapshot {
			if !yield(e.id, e.doc) {
				return
			}
		}
	}
}

func (c *Collection) find(id string) *entry {
	h := xxhash.Sum64String(id)
	for e := c.buckets[c.index(h)]; e != nil; e = e.next {
		if e.hash == h && e.id == id {
			return e
		}
	}
	return nil
}

func (c *Collection) index(h uint64) int {
	return int(h & uint64(len(c.buckets)-1))
}

// grow doubles the bucket count and relinks every entry.
func (c *Collection) grow() {
	old := c.buckets
	c.buckets = make([]*entry, len(old)*2)
	for _, e := range old {
		for e != nil {
			next := e.next
			i := c.index(e.hash)
			e.next = c.buckets[i]
			c.buckets[i] = e
			e = next
		}
	}
}
