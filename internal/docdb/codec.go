package docdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// ErrCorrupt is wrapped by [Load] when a collection file exists but cannot be
// decoded.
var ErrCorrupt = errors.New("corrupt collection file")

// Load reads a collection file holding a JSON array of documents.
//
// A missing file yields an empty collection and no error. A file that cannot
// be decoded, or whose elements are not objects with a string "_id", yields
// an empty collection and an error wrapping ErrCorrupt; the file is left
// untouched.
func Load(path string, capacity int) (*Collection, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built by storage.FileStore
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCollection(capacity), nil
		}
		return nil, fmt.Errorf("failed to read collection file %s: %w", path, err)
	}
	docs, err := decodeArray(data)
	if err != nil {
		return NewCollection(capacity), fmt.Errorf("%w %s: %w", ErrCorrupt, path, err)
	}
	c := NewCollection(max(capacity, len(docs)))
	for _, doc := range docs {
		c.Put(doc.ID(), doc)
	}
	return c, nil
}

func decodeArray(data []byte) ([]Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	v, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %s", kindOf(v))
	}
	docs := make([]Document, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d: expected an object, got %s", i, kindOf(item))
		}
		doc := Document(m)
		if doc.ID() == "" {
			return nil, fmt.Errorf("element %d: missing string %q", i, IDField)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Save overwrites path with every document of c as a JSON array, sorted by
// ID so that successive saves diff cleanly. The file is written in one call
// and is not protected against a crash mid-write.
func Save(path string, c *Collection) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: collection files are not secret
		return fmt.Errorf("failed to write collection file %s: %w", path, err)
	}
	return nil
}

// Encode returns the file representation of c.
func Encode(c *Collection) ([]byte, error) {
	docs := make([]Document, 0, c.Len())
	for _, doc := range c.All() {
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b Document) int {
		return strings.Compare(a.ID(), b.ID())
	})
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection: %w", err)
	}
	return append(data, '\n'), nil
}
