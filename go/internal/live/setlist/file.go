package setlist

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FileStore serves the single setlist described by a YAML file.
type FileStore struct {
	Path string
}

var _ Store = FileStore{}

// Load reads the file on every call. An empty eventID accepts whatever event the file holds.
func (f FileStore) Load(ctx context.Context, eventID string) (Setlist, error) {
	if err := ctx.Err(); err != nil {
		return Setlist{}, err
	}
	sl, err := ReadFile(f.Path)
	if err != nil {
		return Setlist{}, err
	}
	if eventID != "" && sl.EventID != eventID {
		return Setlist{}, fmt.Errorf("%w: %s holds event %q, not %q", ErrSetlistNotFound, f.Path, sl.EventID, eventID)
	}
	return sl, nil
}

// ReadFile parses and validates a YAML setlist file.
func ReadFile(path string) (Setlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return Setlist{}, fmt.Errorf("open setlist file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses and validates a YAML setlist.
func Decode(r io.Reader) (Setlist, error) {
	var sl Setlist
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sl); err != nil {
		return Setlist{}, fmt.Errorf("parse setlist: %w", err)
	}
	if err := sl.Validate(); err != nil {
		return Setlist{}, err
	}
	return sl, nil
}
