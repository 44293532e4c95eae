// Package export writes meeting records as archives (JSON, YAML or XLSX) and
// reads JSON archives back.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// Format is an archive format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown archive format %q (want json, yaml or xlsx)", mnerrors.ErrValidation, s)
	}
}

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return FormatJSON
}

// Write writes meetings to w in the given format.
func Write(w io.Writer, format Format, meetings []*minutes.Meeting) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, meetings)
	case FormatYAML:
		return WriteYAML(w, meetings)
	case FormatXLSX:
		return WriteXLSX(w, meetings)
	default:
		return fmt.Errorf("%w: unknown archive format %q", mnerrors.ErrValidation, format)
	}
}

// WriteJSON writes meetings as an indented JSON array. An empty set is
// written as [] rather than null.
func WriteJSON(w io.Writer, meetings []*minutes.Meeting) error {
	if meetings == nil {
		meetings = []*minutes.Meeting{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meetings); err != nil {
		return fmt.Errorf("encoding json archive: %w", err)
	}
	return nil
}

// WriteYAML writes meetings as a YAML sequence.
func WriteYAML(w io.Writer, meetings []*minutes.Meeting) error {
	if meetings == nil {
		meetings = []*minutes.Meeting{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(meetings); err != nil {
		return fmt.Errorf("encoding yaml archive: %w", err)
	}
	return enc.Close()
}

// ReadJSON reads a JSON archive after validating it against the archive schema.
func ReadJSON(r io.Reader) ([]*minutes.Meeting, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	var meetings []*minutes.Meeting
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&meetings); err != nil {
		return nil, fmt.Errorf("decoding archive: %w", err)
	}
	return meetings, nil
}
