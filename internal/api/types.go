// Package api holds the JSON request and response bodies of the HTTP
// service and their conversion to merge plans.
package api

import (
	"errors"
	"fmt"

	"example.com/pdfmerge/internal/merge"
)

var ErrInvalidSpecification = errors.New("api: invalid merge specification")

// FileIds lists cached files to concatenate, in order.
type FileIds struct {
	IDs []string `json:"ids"`
}

// FileMetaData is returned when a file is cached.
type FileMetaData struct {
	ID            string `json:"id"`
	Size          int    `json:"size"`
	NumberOfPages int    `json:"numberOfPages"`
}

// FileSpecification selects pages from one source. Requests against the
// file cache set FileID; direct uploads set FileNumber, the 0-based position
// of the file among the uploaded parts.
type FileSpecification struct {
	FileID      string `json:"fileId,omitempty"`
	FileNumber  *int   `json:"fileNumber,omitempty"`
	PageNumbers []int  `json:"pageNumbers"`
}

type MergeSpecification struct {
	FileSpecifications []FileSpecification `json:"fileSpecifications"`
}

// CacheURLRequest asks the service to download and cache a document.
type CacheURLRequest struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RefStyle tells which kind of source reference a specification must use.
type RefStyle int

const (
	ByFileID RefStyle = iota
	ByFileNumber
)

func (s RefStyle) String() string {
	if s == ByFileNumber {
		return "fileNumber"
	}
	return "fileId"
}

// Refs converts cache ids to source references.
func (f FileIds) Refs() []merge.SourceRef {
	refs := make([]merge.SourceRef, len(f.IDs))
	for i, id := range f.IDs {
		refs[i] = merge.CacheRef(id)
	}
	return refs
}

// Plan converts the specification to a merge plan. Every entry must use the
// reference style given; mixing the two is rejected.
func (m MergeSpecification) Plan(style RefStyle) (merge.Plan, error) {
	plan := make(merge.Plan, 0, len(m.FileSpecifications))
	for i, fs := range m.FileSpecifications {
		ref, err := fs.ref(style)
		if err != nil {
			return nil, fmt.Errorf("%w: fileSpecifications[%d]: %v", ErrInvalidSpecification, i, err)
		}
		plan = append(plan, merge.FileSpec{Source: ref, Pages: fs.PageNumbers})
	}
	return plan, nil
}

func (fs FileSpecification) ref(style RefStyle) (merge.SourceRef, error) {
	hasID := fs.FileID != ""
	hasNumber := fs.FileNumber != nil

	switch {
	case hasID && hasNumber:
		return merge.SourceRef{}, errors.New("both fileId and fileNumber set")
	case style == ByFileID && !hasID, style == ByFileNumber && !hasNumber:
		return merge.SourceRef{}, fmt.Errorf("%s required", style)
	case style == ByFileID:
		return merge.CacheRef(fs.FileID), nil
	default:
		return merge.IndexRef(*fs.FileNumber), nil
	}
}
