package server

import (
	"strings"
	"time"
)

// sanitizeNoExt keeps letters, digits, dash and underscore, so the result
// is safe inside a quoted Content-Disposition filename.
func sanitizeNoExt(s string) string {
	s = strings.TrimSuffix(strings.TrimSuffix(s, ".pdf"), ".PDF")
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return mergedName
	}
	return b.String()
}

type indexEntry struct {
	ID        string
	Size      int
	ExpiresIn string
}

func (s *Server) indexEntries() []indexEntry {
	infos := s.cache.Entries()
	out := make([]indexEntry, 0, len(infos))
	for _, info := range infos {
		out = append(out, indexEntry{
			ID:        info.Key,
			Size:      info.Size,
			ExpiresIn: info.Remaining.Round(time.Second).String(),
		})
	}
	return out
}
