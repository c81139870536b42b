package batches

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFile = errors.New("batches: unsupported file type")

// maxSheetCells bounds how many non-empty cells are read from one upload.
const maxSheetCells = 100_000

// ParseSpreadsheet returns every non-empty cell of the first sheet, row by row.
// .xlsx is read with excelize, .csv with encoding/csv. Validation happens in Submit.
func ParseSpreadsheet(filename string, r io.Reader) ([]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(filename))
	}
}

func parseXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, unreadable("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidArgument)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, unreadable("read sheet", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, unreadable("read row", err)
		}
		if out, err = appendCells(out, cols); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, unreadable("read rows", err)
	}
	return out, nil
}

// unreadable marks a broken upload as a client error.
func unreadable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidArgument, what, err)
}

func parseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, unreadable("read csv", err)
		}
		if out, err = appendCells(out, rec); err != nil {
			return nil, err
		}
	}
}

func appendCells(out, cells []string) ([]string, error) {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(out) >= maxSheetCells {
			return nil, fmt.Errorf("%w: more than %d cells", ErrInvalidArgument, maxSheetCells)
		}
		out = append(out, c)
	}
	return out, nil
}

// TemplateSheet is the sheet name of the downloadable sample.
const TemplateSheet = "Phone Numbers"

// WriteTemplate writes a sample workbook with a header and example numbers.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Phone Numbers"},
		{"+15551234567"},
		{"+442071234567"},
		{"+61291234567"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(TemplateSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}
