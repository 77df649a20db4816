// Package jsonfile persists records as JSON documents on the local filesystem.
// Reads are forgiving (a missing or malformed file is simply absent); writes are
// deterministic and atomic so readers never observe a partially written file.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"officeflow/pkg/domain"
)

// Read returns the JSON object stored at path. Missing, unreadable or non-object
// files are reported as absent.
func Read(path string) (domain.Record, bool) {
	var rec domain.Record
	if !ReadInto(path, &rec) || rec == nil {
		return nil, false
	}
	return rec, true
}

// ReadList returns the JSON array of objects stored at path.
func ReadList(path string) ([]domain.Record, bool) {
	var list []domain.Record
	if !ReadInto(path, &list) || list == nil {
		return nil, false
	}
	for _, rec := range list {
		if rec == nil {
			return nil, false
		}
	}
	return list, true
}

// ReadInto decodes the file at path into v. Numbers decode as json.Number so a
// rewrite keeps them verbatim.
func ReadInto(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return Decode(data, v) == nil
}

// Decode unmarshals data into v, keeping numbers as json.Number.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after offset %d", dec.InputOffset())
	}
	return nil
}

// Encode renders v with sorted map keys, two-space indentation and no HTML
// escaping, followed by a newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
