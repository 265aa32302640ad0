// Package contracts loads and validates the YAML data contracts that
// anchor the corpus: the document catalog (which manuals exist and
// whether their files are present) and the golden question set used by
// the evaluation runner. Both loaders normalize whitespace and casing
// so downstream comparisons are exact.
package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// CatalogEntry is one document row in the catalog YAML.
type CatalogEntry struct {
	DocID    string `yaml:"doc_id" json:"doc_id"`
	Title    string `yaml:"title" json:"title"`
	Filename string `yaml:"filename" json:"filename"`
	Status   string `yaml:"status" json:"status"`
	Notes    string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Present reports whether the catalog marks the document's file as
// available on disk.
func (e CatalogEntry) Present() bool {
	return e.Status == StatusPresent
}

// Catalog statuses. Anything else is a contract violation.
const (
	StatusPresent = "present"
	StatusMissing = "missing"
)

type catalogFile struct {
	Documents []map[string]any `yaml:"documents"`
}

// Catalog is a loaded document catalog with doc_id lookup.
type Catalog struct {
	Entries []CatalogEntry
	byDoc   map[string]CatalogEntry
}

// Get returns the entry for docID, or false when the catalog does not
// list it.
func (c *Catalog) Get(docID string) (CatalogEntry, bool) {
	entry, ok := c.byDoc[docID]
	return entry, ok
}

// LoadCatalog reads the document catalog YAML. The top-level object
// must be a mapping with a `documents` list.
func LoadCatalog(path string) (*Catalog, error) {
	root, err := loadYAMLMapping(path)
	if err != nil {
		return nil, err
	}

	rawRows, err := mappingList(root, "documents", path)
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{byDoc: map[string]CatalogEntry{}}
	for _, row := range rawRows {
		entry := CatalogEntry{
			DocID:    stringValue(row, "doc_id"),
			Title:    stringValue(row, "title"),
			Filename: stringValue(row, "filename"),
			Status:   strings.ToLower(stringValue(row, "status")),
			Notes:    stringValue(row, "notes"),
		}
		catalog.Entries = append(catalog.Entries, entry)
		if entry.DocID != "" {
			if _, dup := catalog.byDoc[entry.DocID]; !dup {
				catalog.byDoc[entry.DocID] = entry
			}
		}
	}
	return catalog, nil
}

func loadYAMLMapping(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qaerrors.New(qaerrors.ErrCodeFileNotFound, "YAML file not found: "+path, err)
		}
		return nil, qaerrors.New(qaerrors.ErrCodeParseFailed, "read "+path, err)
	}

	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, qaerrors.New(qaerrors.ErrCodeParseFailed, "parse "+path, err)
	}
	mapping, ok := root.(map[string]any)
	if !ok {
		return nil, qaerrors.New(qaerrors.ErrCodeContractInvalid,
			"top-level YAML object must be a mapping: "+path, nil)
	}
	return mapping, nil
}

func mappingList(root map[string]any, key, path string) ([]map[string]any, error) {
	raw, ok := root[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, qaerrors.New(qaerrors.ErrCodeContractInvalid,
			fmt.Sprintf("`%s` must be a list in %s", key, filepath.Base(path)), nil)
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, qaerrors.New(qaerrors.ErrCodeContractInvalid,
				fmt.Sprintf("each `%s` entry must be a mapping in %s", key, filepath.Base(path)), nil)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringValue(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", s))
	}
}

func intValue(row map[string]any, key string, fallback int) int {
	v, ok := row[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
