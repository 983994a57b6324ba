package dochost

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/tagsync/internal/host"
)

// document is the on-disk layout of a canvas file.
//
//	objects:
//	  - {id: "1:2", name: Button, type: FRAME}
//	selection: ["1:2"]
//	documentData:
//	  tagsync.registry: '{"hero":{"color":"#f00"}}'
//	objectData:
//	  "1:2":
//	    tagsync.tags: '["hero"]'
type document struct {
	Objects      []host.Node                  `yaml:"objects"`
	Selection    []string                     `yaml:"selection,omitempty"`
	DocumentData map[string]string            `yaml:"documentData,omitempty"`
	ObjectData   map[string]map[string]string `yaml:"objectData,omitempty"`
}

func readDocument(path string) (document, error) {
	var doc document
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-chosen document path
	if err != nil {
		return doc, fmt.Errorf("reading document: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing document %s: %w", path, err)
	}
	return doc, nil
}

// writeDocument replaces path atomically via a temp file and rename.
func writeDocument(path string, doc document) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	_ = enc.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp document: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing document: %w", err)
	}
	return nil
}

func (d document) clone() document {
	out := document{
		Objects:      slices.Clone(d.Objects),
		Selection:    slices.Clone(d.Selection),
		DocumentData: maps.Clone(d.DocumentData),
	}
	if d.ObjectData != nil {
		out.ObjectData = make(map[string]map[string]string, len(d.ObjectData))
		for id, kv := range d.ObjectData {
			out.ObjectData[id] = maps.Clone(kv)
		}
	}
	return out
}
