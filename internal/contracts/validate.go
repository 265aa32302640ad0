package contracts

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidationResult collects contract violations. Errors block serving;
// warnings are advisory.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the contracts are serviceable.
func (r *ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate cross-checks the document catalog against the golden
// question set. With strictFiles, documents the catalog marks missing
// are errors instead of warnings. Load failures surface as the
// returned error; field-level violations land in the result.
func Validate(catalogPath, goldenPath string, strictFiles bool) (*ValidationResult, error) {
	result := &ValidationResult{}

	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	golden, err := LoadGoldenQuestions(goldenPath)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	byDoc := map[string]CatalogEntry{}

	for _, entry := range catalog.Entries {
		if entry.DocID == "" {
			result.errorf("Catalog entry has empty doc_id")
			continue
		}
		if seen[entry.DocID] {
			result.errorf("Duplicate doc_id in catalog: %s", entry.DocID)
			continue
		}
		seen[entry.DocID] = true
		byDoc[entry.DocID] = entry

		if entry.Status != StatusPresent && entry.Status != StatusMissing {
			result.errorf("Catalog status for %s must be 'present' or 'missing'", entry.DocID)
		}

		if entry.Status == StatusPresent {
			if entry.Filename == "" {
				result.errorf("Catalog entry %s is present but filename is empty", entry.DocID)
			} else {
				filePath := filepath.Join(filepath.Dir(catalogPath), entry.Filename)
				if _, statErr := os.Stat(filePath); statErr != nil {
					result.errorf("Catalog file does not exist for %s: %s", entry.DocID, entry.Filename)
				}
			}
		}

		if entry.Status == StatusMissing {
			msg := "Catalog marks missing document: " + entry.DocID
			if strictFiles {
				result.Errors = append(result.Errors, msg)
			} else {
				result.Warnings = append(result.Warnings, msg)
			}
		}
	}

	for _, docID := range golden.DocIDs {
		if _, ok := byDoc[docID]; !ok {
			result.errorf("Golden meta doc id missing from catalog: %s", docID)
		}
	}

	for _, q := range golden.Questions {
		if q.QuestionID == "" {
			result.errorf("Golden question has empty id")
		}
		if q.Question == "" {
			id := q.QuestionID
			if id == "" {
				id = "<unknown>"
			}
			result.errorf("Golden question %s has empty question", id)
		}
		if q.Doc != "multiple" {
			if _, ok := byDoc[q.Doc]; !ok {
				result.errorf("Golden question %s references unknown doc id: %s", q.QuestionID, q.Doc)
			}
		}
	}

	return result, nil
}
