package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is a catalog document encoding
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// Document is the on-disk and in-object layout of a catalog
type Document struct {
	QPUs []*domain.QPU `json:"qpus" yaml:"qpus" msgpack:"qpus"`
}

// FormatFromPath picks the encoding from a file or object key extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".msgpack", ".mpk":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
}

// Decode parses a catalog document
func Decode(format Format, data []byte) ([]*domain.QPU, error) {
	var doc Document
	var err error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s catalog: %w", format, err)
	}
	return doc.QPUs, nil
}

// Encode writes a catalog document
func Encode(format Format, qpus []*domain.QPU) ([]byte, error) {
	doc := Document{QPUs: qpus}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatMsgpack:
		return msgpack.Marshal(doc)
	}
	return nil, fmt.Errorf("unsupported catalog format %q", format)
}
