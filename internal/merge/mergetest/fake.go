// Package mergetest provides an in-memory merge.Backend for tests.
//
// A fake document is the text "FAKE <name> <pages>", for example
// "FAKE A 3". The output of a merge is the list of copied pages joined by
// commas, each written as <name><page>: "A1,B2,A2".
package mergetest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"example.com/pdfmerge/internal/merge"
)

// Doc returns the bytes of a fake document.
func Doc(name string, pages int) []byte {
	return []byte(fmt.Sprintf("FAKE %s %d", name, pages))
}

// Backend records every open and close so tests can check resource
// discipline.
type Backend struct {
	mu     sync.Mutex
	opens  map[string]int
	closes map[string]int
	// FailClose makes Close return an error for the named documents.
	FailClose map[string]bool
}

func NewBackend() *Backend {
	return &Backend{opens: make(map[string]int), closes: make(map[string]int)}
}

type document struct {
	backend *Backend
	name    string
	pages   int
	closed  bool
}

func (b *Backend) Open(data []byte) (merge.Document, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 3 || fields[0] != "FAKE" {
		return nil, fmt.Errorf("%w: not a fake document", merge.ErrMalformedDocument)
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("%w: bad page count %q", merge.ErrMalformedDocument, fields[2])
	}

	b.mu.Lock()
	b.opens[fields[1]]++
	b.mu.Unlock()
	return &document{backend: b, name: fields[1], pages: n}, nil
}

func (b *Backend) NewOutput() merge.Output { return &output{} }

// Opens reports how many times the named document was opened.
func (b *Backend) Opens(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[name]
}

// Closes reports how many times the named document was closed.
func (b *Backend) Closes(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes[name]
}

// Balanced reports whether every open was matched by exactly one close.
func (b *Backend) Balanced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opens) != len(b.closes) {
		return false
	}
	for name, n := range b.opens {
		if b.closes[name] != n {
			return false
		}
	}
	return true
}

func (d *document) PageCount() int { return d.pages }

func (d *document) Close() error {
	d.backend.mu.Lock()
	d.backend.closes[d.name]++
	fail := d.backend.FailClose[d.name]
	d.backend.mu.Unlock()

	if d.closed {
		return errors.New("mergetest: document closed twice")
	}
	d.closed = true
	if fail {
		return fmt.Errorf("mergetest: close %s failed", d.name)
	}
	return nil
}

type output struct {
	pages []string
}

func (o *output) AppendPage(doc merge.Document, page int) error {
	d, ok := doc.(*document)
	if !ok {
		return fmt.Errorf("mergetest: foreign document %T", doc)
	}
	if d.closed {
		return fmt.Errorf("mergetest: page %d of closed document %s", page, d.name)
	}
	o.pages = append(o.pages, d.name+strconv.Itoa(page))
	return nil
}

func (o *output) Bytes() ([]byte, error) {
	return []byte(strings.Join(o.pages, ",")), nil
}
