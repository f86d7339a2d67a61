package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Recipient is one ordered row of a parsed recipient sheet. Email may be
// empty for malformed rows; the send loop reports those as per-recipient
// failures so event counts match row counts.
type Recipient struct {
	Name  string
	Email string
}

// Parse reads an uploaded spreadsheet into ordered recipient rows. The
// format is chosen by extension: .xlsx/.xlsm via excelize, .csv via
// encoding/csv. The header row must contain an "email" column; a "name"
// column is optional. Header matching is case-insensitive.
func Parse(r io.Reader, filename string) ([]Recipient, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		return parseExcel(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet format %q", ext)
	}
}

func parseExcel(r io.Reader) ([]Recipient, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	return fromRows(rows)
}

func parseCSV(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]Recipient, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet has no header row")
	}

	emailCol, nameCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "email":
			emailCol = i
		case "name":
			nameCol = i
		}
	}
	if emailCol == -1 {
		return nil, fmt.Errorf("spreadsheet is missing an email column")
	}

	var recipients []Recipient
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		recipients = append(recipients, Recipient{
			Email: cell(row, emailCol),
			Name:  cell(row, nameCol),
		})
	}
	return recipients, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
