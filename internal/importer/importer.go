// Package importer parses uploaded contact files (CSV or XLSX) into flat
// string tables and builds validated contacts from them.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/coldfront-labs/coldfront/internal/models"
)

const (
	// MaxFileBytes is enforced before any parsing happens.
	MaxFileBytes = 5 << 20

	// MaxRows caps imported data rows; excess rows are silently dropped
	// and the truncation is reported in the summary.
	MaxRows = 10000
)

var (
	ErrFileTooLarge = fmt.Errorf("file exceeds %d bytes", MaxFileBytes)
	ErrEmptyFile    = errors.New("file has no header row")
	ErrNoSheets     = errors.New("workbook has no sheets")
)

// Table is a parsed upload: a header row plus data rows padded or truncated
// to the header width, origin-agnostic.
type Table struct {
	Headers   []string
	Rows      [][]string
	Truncated bool
}

// Summary reports what an import did with the parsed rows.
type Summary struct {
	TotalRows int  `json:"total_rows"`
	Imported  int  `json:"imported"`
	Skipped   int  `json:"skipped"`
	Truncated bool `json:"truncated"`
}

// ParseTabular reads one uploaded file into a Table. The format is sniffed
// from content, not the file name: XLSX files are zip archives and start
// with "PK", everything else is treated as CSV.
func ParseTabular(name string, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", name, err)
	}
	if len(data) > MaxFileBytes {
		return nil, ErrFileTooLarge
	}

	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return parseXLSX(data)
	}
	return parseCSV(data)
}

func parseCSV(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return tableFromRecords(records)
}

func parseXLSX(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return tableFromRecords(rows)
}

func tableFromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyFile
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if len(t.Rows) >= MaxRows {
			t.Truncated = true
			break
		}
		row := make([]string, len(headers))
		for i := range headers {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// BuildContacts turns a table into contacts keyed on emailColumn. Rows
// whose email cell does not parse as an address are skipped and counted,
// never imported. The email column must be one of the table headers.
func BuildContacts(t *Table, emailColumn string) ([]models.Contact, Summary, error) {
	col := -1
	for i, h := range t.Headers {
		if h == emailColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, Summary{}, fmt.Errorf("email column %q not found in headers", emailColumn)
	}

	sum := Summary{TotalRows: len(t.Rows), Truncated: t.Truncated}
	var contacts []models.Contact
	for _, row := range t.Rows {
		if _, err := mail.ParseAddress(row[col]); err != nil {
			sum.Skipped++
			continue
		}
		attrs := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			attrs[h] = row[i]
		}
		contacts = append(contacts, models.Contact{EmailKey: emailColumn, Attributes: attrs})
		sum.Imported++
	}

	return contacts, sum, nil
}
