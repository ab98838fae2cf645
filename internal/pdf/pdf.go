// Package pdf binds the merge engine to pdfcpu.
//
// pdfcpu works on whole documents rather than single pages, so Output
// collects consecutive pages taken from the same source into a run. At
// Bytes time each run becomes a document of its own (api.Collect keeps page
// order and duplicates) and the runs are joined with api.MergeRaw.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"example.com/pdfmerge/internal/merge"
)

var (
	ErrClosed      = errors.New("pdf: document is closed")
	ErrEmptyOutput = errors.New("pdf: no pages appended")
)

var disableConfigDir sync.Once

type Backend struct {
	strict bool
}

// NewBackend returns a pdfcpu backend. Unless strict is set, documents are
// read in pdfcpu's relaxed validation mode, which accepts the small spec
// violations common in real-world files.
func NewBackend(strict bool) *Backend {
	// pdfcpu would otherwise create a config directory under $HOME on first use.
	disableConfigDir.Do(api.DisableConfigDir)
	return &Backend{strict: strict}
}

// config returns a fresh configuration; pdfcpu records the running command
// in it, so it must not be shared between concurrent calls.
func (b *Backend) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if b.strict {
		conf.ValidationMode = model.ValidationStrict
	} else {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

// Document is an opened PDF. It keeps the source bytes, which are immutable
// for its whole life, and its page count.
type Document struct {
	data  []byte
	pages int
}

func (b *Backend) Open(data []byte) (merge.Document, error) {
	return b.open(data)
}

func (b *Backend) open(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", merge.ErrMalformedDocument)
	}
	n, err := api.PageCount(bytes.NewReader(data), b.config())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", merge.ErrMalformedDocument, err)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: document has no pages", merge.ErrMalformedDocument)
	}
	return &Document{data: data, pages: n}, nil
}

func (d *Document) PageCount() int { return d.pages }

func (d *Document) Close() error {
	if d.data == nil {
		return ErrClosed
	}
	d.data = nil
	return nil
}

func (b *Backend) NewOutput() merge.Output { return &Output{backend: b} }

type run struct {
	doc   *Document
	data  []byte
	total int
	pages []int
}

// whole reports whether the run is every page of its source, in order.
func (r *run) whole() bool {
	if len(r.pages) != r.total {
		return false
	}
	for i, p := range r.pages {
		if p != i+1 {
			return false
		}
	}
	return true
}

// Output accumulates appended pages. It holds on to the source bytes, so
// sources may be closed before Bytes is called.
type Output struct {
	backend *Backend
	runs    []*run
}

func (o *Output) AppendPage(doc merge.Document, page int) error {
	d, ok := doc.(*Document)
	if !ok {
		return fmt.Errorf("pdf: unsupported document type %T", doc)
	}
	if d.data == nil {
		return ErrClosed
	}
	if page < 1 || page > d.pages {
		return fmt.Errorf("%w: page %d of %d", merge.ErrInvalidPageNumber, page, d.pages)
	}

	if n := len(o.runs); n > 0 && o.runs[n-1].doc == d {
		last := o.runs[n-1]
		last.pages = append(last.pages, page)
		return nil
	}
	o.runs = append(o.runs, &run{doc: d, data: d.data, total: d.pages, pages: []int{page}})
	return nil
}

// PageCount is the number of pages appended so far.
func (o *Output) PageCount() int {
	n := 0
	for _, r := range o.runs {
		n += len(r.pages)
	}
	return n
}

func (o *Output) Bytes() ([]byte, error) {
	if o.PageCount() == 0 {
		return nil, ErrEmptyOutput
	}

	segments := make([][]byte, 0, len(o.runs))
	for i, r := range o.runs {
		seg, err := o.segment(r)
		if err != nil {
			return nil, fmt.Errorf("pdf: build segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}

	if len(segments) == 1 {
		return segments[0], nil
	}

	readers := make([]io.ReadSeeker, len(segments))
	for i, seg := range segments {
		readers[i] = bytes.NewReader(seg)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, o.backend.config()); err != nil {
		return nil, fmt.Errorf("pdf: merge segments: %w", err)
	}
	return buf.Bytes(), nil
}

func (o *Output) segment(r *run) ([]byte, error) {
	if r.whole() {
		return bytes.Clone(r.data), nil
	}

	selected := make([]string, len(r.pages))
	for i, p := range r.pages {
		selected[i] = strconv.Itoa(p)
	}
	var buf bytes.Buffer
	if err := api.Collect(bytes.NewReader(r.data), &buf, selected, o.backend.config()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
