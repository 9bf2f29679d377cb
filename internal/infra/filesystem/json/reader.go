package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var ErrEmptyDocument = errors.New("empty JSON document")

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ReadJSON decodes the document at path into target. A missing file matches
// fs.ErrNotExist so callers can start from an empty state; an empty or
// whitespace-only file is reported as ErrEmptyDocument.
func (r *Reader) ReadJSON(path string, target any) error {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	case err != nil:
		return fmt.Errorf("failed to read '%s': %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode '%s': %w", path, err)
	}

	return nil
}
