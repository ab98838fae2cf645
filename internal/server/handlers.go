package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"example.com/pdfmerge/internal/api"
	"example.com/pdfmerge/internal/merge"
)

const (
	multipartMemory = 32 << 20
	mergedName      = "merged"
)

var errBadRequest = errors.New("bad request")

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Files    []indexEntry
		Capacity int
		TTL      string
		CanFetch bool
	}{
		Files:    s.indexEntries(),
		Capacity: s.cache.Capacity(),
		TTL:      s.cache.TTL().String(),
		CanFetch: s.fetcher != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

func (s *Server) handleCacheFile(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseMultipart(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	files := form.File["file"]
	if len(files) != 1 {
		s.writeError(w, r, fmt.Errorf("%w: expected exactly one part named \"file\", got %d", errBadRequest, len(files)))
		return
	}
	data, err := readFile(files[0])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cacheDocument(w, r, data)
}

func (s *Server) handleCacheURL(w http.ResponseWriter, r *http.Request) {
	var in api.CacheURLRequest
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.URL) == "" {
		s.writeError(w, r, fmt.Errorf("%w: url is required", errBadRequest))
		return
	}
	data, err := s.fetcher.Fetch(r.Context(), strings.TrimSpace(in.URL))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cacheDocument(w, r, data)
}

// cacheDocument stores data if it opens as a document and answers with its
// metadata. Unreadable documents are not cached.
func (s *Server) cacheDocument(w http.ResponseWriter, r *http.Request, data []byte) {
	pages, err := s.engine.Inspect(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := s.cache.Put(data)
	s.logger.Info("cached file", "id", id, "size", len(data), "pages", pages)
	writeJSON(w, http.StatusOK, api.FileMetaData{ID: id, Size: len(data), NumberOfPages: pages})
}

// handleMergeFiles concatenates whole documents: cached ones when the body
// is JSON FileIds, uploaded ones when it is multipart with "files" parts.
func (s *Server) handleMergeFiles(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		form, err := s.parseMultipart(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		files, err := readFiles(form, "files")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		refs := make([]merge.SourceRef, len(files))
		for i := range files {
			refs[i] = merge.IndexRef(i)
		}
		out, err := s.engine.MergeFiles(merge.UploadResolver(files), refs)
		s.writePDF(w, r, out, err)
		return
	}

	var in api.FileIds
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.MergeFiles(merge.CacheResolver{Cache: s.cache}, in.Refs())
	s.writePDF(w, r, out, err)
}

// handleMergePages builds a document from selected pages: of cached files
// when the body is a JSON MergeSpecification using fileId, of uploaded files
// when it is multipart with "files" parts and a "mergeSpecification" part
// using fileNumber.
func (s *Server) handleMergePages(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		form, err := s.parseMultipart(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		files, err := readFiles(form, "files")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		spec, err := specificationPart(form)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		plan, err := spec.Plan(api.ByFileNumber)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := s.engine.MergePages(merge.UploadResolver(files), plan)
		s.writePDF(w, r, out, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	spec, err := api.DecodeSpecification(r.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plan, err := spec.Plan(api.ByFileID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.engine.MergePages(merge.CacheResolver{Cache: s.cache}, plan)
	s.writePDF(w, r, out, err)
}

func (s *Server) writePDF(w http.ResponseWriter, r *http.Request, out []byte, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := mergedName
	if q := strings.TrimSpace(r.URL.Query().Get("out")); q != "" {
		name = sanitizeNoExt(q)
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.pdf"`)
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(out); err != nil {
		s.logger.Warn("write merged document", "error", err)
	}
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	if !isMultipart(r) {
		return nil, fmt.Errorf("%w: expected multipart/form-data", errBadRequest)
	}
	if r.ContentLength > s.maxBytes {
		return nil, &http.MaxBytesError{Limit: s.maxBytes}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return r.MultipartForm, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	if err := json.NewDecoder(bufio.NewReader(r.Body)).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func readFiles(form *multipart.Form, name string) ([][]byte, error) {
	headers := form.File[name]
	files := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// specificationPart reads the "mergeSpecification" part, sent either as a
// plain form field or as a file part with a JSON body.
func specificationPart(form *multipart.Form) (api.MergeSpecification, error) {
	if vals := form.Value["mergeSpecification"]; len(vals) > 0 {
		return api.DecodeSpecification(strings.NewReader(vals[0]))
	}
	if fhs := form.File["mergeSpecification"]; len(fhs) > 0 {
		f, err := fhs[0].Open()
		if err != nil {
			return api.MergeSpecification{}, err
		}
		defer f.Close()
		return api.DecodeSpecification(f)
	}
	return api.MergeSpecification{}, fmt.Errorf("%w: missing mergeSpecification part", errBadRequest)
}
