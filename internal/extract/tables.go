// Package extract holds the heuristic extractors that turn raw page text
// into structured table rows and figure metadata.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fieldscope/manualqa/internal/model"
)

// unitPattern matches a unit string like "(rpm)", "(V)", "(m/s^2)".
var unitPattern = regexp.MustCompile(`\(([^)]{1,20})\)`)

// keyValuePattern matches "label: 12.5 Nm" style rows.
var keyValuePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9\-/()\s]{2,}:\s*[-+]?\d+(?:\.\d+)?\s*(?:[A-Za-z%/^]+)?$`)

var (
	multiSpaceSplit = regexp.MustCompile(`\s{2,}`)
	numericToken    = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	alphaToken      = regexp.MustCompile(`[A-Za-z]{2,}`)
	numericCell     = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?\s*(?:[A-Za-z%/^]*)$`)
)

// TableExtractor detects table-like blocks in mixed manual text.
//
// A line counts as tabular when it contains a pipe delimiter, matches the
// key-value pattern, splits into three or more two-space columns, or holds
// at least two numeric tokens next to an alphabetic token. Consecutive
// tabular lines (two or more) form one table.
type TableExtractor struct{}

// NewTableExtractor returns a ready extractor.
func NewTableExtractor() *TableExtractor {
	return &TableExtractor{}
}

// Extract parses page text into structured tables.
func (e *TableExtractor) Extract(pageText string, pageNumber int, docID string) []model.ExtractedTable {
	var lines []string
	for _, line := range strings.Split(pageText, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}
	if len(lines) == 0 {
		return nil
	}

	var groups [][]string
	var current []string
	for _, line := range lines {
		if looksTabular(line) {
			current = append(current, strings.TrimSpace(line))
		} else {
			if len(current) >= 2 {
				groups = append(groups, current)
			}
			current = nil
		}
	}
	if len(current) >= 2 {
		groups = append(groups, current)
	}

	tables := make([]model.ExtractedTable, 0, len(groups))
	for idx, group := range groups {
		tableID := fmt.Sprintf("table-p%04d-%03d", pageNumber, idx)
		if docID != "" {
			tableID = fmt.Sprintf("tbl_%s_%d_%03d", docID, pageNumber, idx)
		}
		rows := parseRows(group, tableID, pageNumber)

		var rawText string
		if len(rows) > 0 {
			rawLines := make([]string, 0, len(rows))
			for _, row := range rows {
				if len(row.Headers) > 0 {
					rawLines = append(rawLines,
						strings.Join(row.Headers, " | ")+" || "+strings.Join(row.RowCells, " | "))
				} else {
					rawLines = append(rawLines, strings.Join(row.RowCells, " | "))
				}
			}
			rawText = strings.Join(rawLines, "\n")
		} else {
			rawText = strings.Join(group, "\n")
		}

		tables = append(tables, model.ExtractedTable{
			TableID:    tableID,
			PageNumber: pageNumber,
			Rows:       rows,
			RawText:    rawText,
		})
	}
	return tables
}

func parseRows(rawLines []string, tableID string, pageNumber int) []model.ExtractedTableRow {
	if len(rawLines) == 0 {
		return nil
	}

	splitLines := make([][]string, len(rawLines))
	for i, line := range rawLines {
		splitLines[i] = splitRow(line)
	}

	// Key-value tables: at least 80% of rows were split on a colon.
	// Verify against the raw line so two-column space tables are not
	// mistaken for KV tables.
	kvCount := 0
	for i, cells := range splitLines {
		if isColonSplit(rawLines[i], cells) {
			kvCount++
		}
	}
	isKVTable := float64(kvCount)/float64(len(splitLines)) >= 0.8

	// Header detection: first row is a header when at least half its
	// cells are short non-numeric strings.
	var headers []string
	dataStart := 0
	if !isKVTable {
		candidate := splitLines[0]
		nonNumeric := 0
		for _, c := range candidate {
			trimmed := strings.TrimSpace(c)
			if trimmed != "" && !numericCell.MatchString(trimmed) && len(trimmed) < 30 {
				nonNumeric++
			}
		}
		if len(candidate) > 0 && float64(nonNumeric)/float64(len(candidate)) >= 0.5 {
			headers = make([]string, len(candidate))
			for i, c := range candidate {
				headers[i] = strings.TrimSpace(c)
			}
			dataStart = 1
		}
	}

	var rows []model.ExtractedTableRow
	for rowIdx, cells := range splitLines[dataStart:] {
		stripped := make([]string, len(cells))
		units := make([]string, len(cells))
		for i, cell := range cells {
			stripped[i] = strings.TrimSpace(cell)
			if m := unitPattern.FindStringSubmatch(stripped[i]); m != nil {
				units[i] = m[1]
			}
		}
		rows = append(rows, model.ExtractedTableRow{
			TableID:    tableID,
			PageNumber: pageNumber,
			RowIndex:   rowIdx,
			Headers:    headers,
			RowCells:   stripped,
			Units:      units,
			RawText:    rawLines[dataStart+rowIdx],
		})
	}

	// Fallback: emit the whole block as a single row.
	if len(rows) == 0 {
		raw := strings.Join(rawLines, "\n")
		rows = []model.ExtractedTableRow{{
			TableID:    tableID,
			PageNumber: pageNumber,
			RowIndex:   0,
			RowCells:   []string{raw},
			Units:      []string{""},
			RawText:    raw,
		}}
	}
	return rows
}

func isColonSplit(raw string, cells []string) bool {
	if len(cells) != 2 || !strings.Contains(raw, ":") || strings.Contains(raw, "://") {
		return false
	}
	left, _, _ := strings.Cut(raw, ":")
	return strings.TrimSpace(left) == cells[0]
}

func looksTabular(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	if strings.Contains(s, "|") {
		return true
	}
	if keyValuePattern.MatchString(s) {
		return true
	}
	cols := 0
	for _, c := range multiSpaceSplit.Split(s, -1) {
		if c != "" {
			cols++
		}
	}
	if cols >= 3 {
		return true
	}
	return len(numericToken.FindAllString(s, -1)) >= 2 && alphaToken.MatchString(s)
}

// splitRow splits on pipe, then guarded colon (key-value), then 2+ spaces.
func splitRow(line string) []string {
	if strings.Contains(line, "|") {
		var cells []string
		for _, c := range strings.Split(line, "|") {
			if t := strings.TrimSpace(c); t != "" {
				cells = append(cells, t)
			}
		}
		return cells
	}
	if strings.Contains(line, ":") && !strings.Contains(line, "://") {
		left, right, _ := strings.Cut(line, ":")
		l, r := strings.TrimSpace(left), strings.TrimSpace(right)
		if l != "" && r != "" {
			return []string{l, r}
		}
	}
	var cells []string
	for _, c := range multiSpaceSplit.Split(line, -1) {
		if t := strings.TrimSpace(c); t != "" {
			cells = append(cells, t)
		}
	}
	if len(cells) == 0 {
		return []string{line}
	}
	return cells
}
