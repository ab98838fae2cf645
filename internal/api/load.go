package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DecodeSpecification reads a MergeSpecification document. Unknown fields
// are rejected so that typos such as "pages" do not silently select nothing.
func DecodeSpecification(r io.Reader) (MergeSpecification, error) {
	var spec MergeSpecification
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return MergeSpecification{}, fmt.Errorf("%w: %w", ErrInvalidSpecification, err)
	}
	return spec, nil
}

// LoadSpecification reads a MergeSpecification from a JSON file.
func LoadSpecification(path string) (MergeSpecification, error) {
	f, err := os.Open(path)
	if err != nil {
		return MergeSpecification{}, err
	}
	defer f.Close()
	return DecodeSpecification(f)
}
