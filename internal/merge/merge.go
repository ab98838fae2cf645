// Package merge assembles a new document from pages of existing ones.
//
// The engine knows nothing about the PDF format. It drives a Backend that can
// open a document from bytes, count its pages and copy a page into an output
// document. Sources are named by SourceRef and turned into bytes by a
// Resolver, so the same merge code serves cached files and files uploaded
// with the request.
//
// A merge either produces a complete document or fails; there is no partial
// output. Every document the engine opens is closed exactly once, on success
// and on failure.
package merge

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNotFound          = errors.New("merge: source not found")
	ErrInvalidPageNumber = errors.New("merge: invalid page number")
	ErrMalformedDocument = errors.New("merge: malformed document")
	ErrEmptyPlan         = errors.New("merge: nothing to merge")
)

// Document is an opened source document.
type Document interface {
	PageCount() int
	Close() error
}

// Output receives pages in order and serializes the result.
type Output interface {
	// AppendPage copies page (1-based) of doc to the end of the output.
	AppendPage(doc Document, page int) error
	Bytes() ([]byte, error)
}

// Backend is the document library the engine drives. Open should wrap
// failures to parse data with ErrMalformedDocument.
type Backend interface {
	Open(data []byte) (Document, error)
	NewOutput() Output
}

// FileSpec selects pages, in order, from one source. Pages may repeat.
type FileSpec struct {
	Source SourceRef
	Pages  []int
}

// Plan is an ordered list of FileSpecs. The same source may appear in any
// number of them.
type Plan []FileSpec

// PageTotal is the number of pages the plan produces.
func (p Plan) PageTotal() int {
	n := 0
	for _, fs := range p {
		n += len(fs.Pages)
	}
	return n
}

type Engine struct {
	backend Backend
	logger  *slog.Logger
}

// New returns an engine driving backend. A nil logger means slog.Default().
func New(backend Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backend: backend, logger: logger}
}

// Inspect opens data and returns its page count.
func (e *Engine) Inspect(data []byte) (int, error) {
	doc, err := e.backend.Open(data)
	if err != nil {
		return 0, err
	}
	n := doc.PageCount()
	if err := doc.Close(); err != nil {
		e.logger.Warn("close inspected document", "error", err)
	}
	return n, nil
}

// MergeFiles concatenates every page of each source, in the given order.
// Each source is opened, fully copied and closed before the next one is
// opened. A source listed twice is opened twice.
func (e *Engine) MergeFiles(r Resolver, refs []SourceRef) ([]byte, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyPlan
	}

	docs := newDocSet(e, r)
	defer docs.closeAll()

	out := e.backend.NewOutput()
	pages := 0
	for _, ref := range refs {
		doc, err := docs.open(ref)
		if err != nil {
			return nil, err
		}
		for p := 1; p <= doc.PageCount(); p++ {
			if err := out.AppendPage(doc, p); err != nil {
				return nil, fmt.Errorf("copy page %d of %s: %w", p, ref, err)
			}
		}
		pages += doc.PageCount()
		docs.release(ref)
	}

	b, err := out.Bytes()
	if err != nil {
		return nil, fmt.Errorf("write merged document: %w", err)
	}
	e.logger.Debug("merged files", "sources", len(refs), "pages", pages, "bytes", len(b))
	return b, nil
}

// MergePages builds the document described by plan. Every distinct source is
// opened once and kept open until the whole plan has been copied, because a
// later FileSpec may come back to it. All page numbers are checked before any
// page is copied.
func (e *Engine) MergePages(r Resolver, plan Plan) ([]byte, error) {
	if plan.PageTotal() == 0 {
		return nil, ErrEmptyPlan
	}

	docs := newDocSet(e, r)
	defer docs.closeAll()

	for _, fs := range plan {
		doc, err := docs.open(fs.Source)
		if err != nil {
			return nil, err
		}
		for _, p := range fs.Pages {
			if p < 1 || p > doc.PageCount() {
				return nil, fmt.Errorf("%w: page %d of %s, document has %d pages",
					ErrInvalidPageNumber, p, fs.Source, doc.PageCount())
			}
		}
	}

	out := e.backend.NewOutput()
	for _, fs := range plan {
		doc := docs.get(fs.Source)
		for _, p := range fs.Pages {
			if err := out.AppendPage(doc, p); err != nil {
				return nil, fmt.Errorf("copy page %d of %s: %w", p, fs.Source, err)
			}
		}
	}

	b, err := out.Bytes()
	if err != nil {
		return nil, fmt.Errorf("write merged document: %w", err)
	}
	e.logger.Debug("merged pages", "specs", len(plan), "sources", docs.opened, "pages", plan.PageTotal(), "bytes", len(b))
	return b, nil
}

// docSet owns the documents opened during one merge. open returns the
// already opened document for a ref it has seen; closeAll closes whatever is
// still open.
type docSet struct {
	engine   *Engine
	resolver Resolver
	docs     map[SourceRef]Document
	opened   int
}

func newDocSet(e *Engine, r Resolver) *docSet {
	return &docSet{engine: e, resolver: r, docs: make(map[SourceRef]Document)}
}

func (s *docSet) open(ref SourceRef) (Document, error) {
	if doc, ok := s.docs[ref]; ok {
		return doc, nil
	}
	data, err := s.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	doc, err := s.engine.backend.Open(data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	s.docs[ref] = doc
	s.opened++
	return doc, nil
}

func (s *docSet) get(ref SourceRef) Document { return s.docs[ref] }

// release closes the document for ref now instead of at closeAll.
func (s *docSet) release(ref SourceRef) {
	doc, ok := s.docs[ref]
	if !ok {
		return
	}
	delete(s.docs, ref)
	if err := doc.Close(); err != nil {
		s.engine.logger.Warn("close source document", "source", ref.String(), "error", err)
	}
}

func (s *docSet) closeAll() {
	for ref := range s.docs {
		s.release(ref)
	}
}
