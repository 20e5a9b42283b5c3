package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

// WriteCSV writes a full table with the schema header. Floats use the
// shortest representation that parses back exactly, so write/read round
// trips are bit-identical.
func WriteCSV(w io.Writer, t *cohort.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cohort.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(cohort.Columns))
	for i, row := range t.Rows {
		if len(row) != len(cohort.Columns) {
			return fmt.Errorf("write csv: row %d has width %d, want %d: %w",
				i, len(row), len(cohort.Columns), cohort.ErrShapeMismatch)
		}
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV, validating the header
// against the cohort schema.
func ReadCSV(r io.Reader) (*cohort.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) != len(cohort.Columns) {
		return nil, fmt.Errorf("read csv: %d columns, want %d: %w",
			len(header), len(cohort.Columns), cohort.ErrShapeMismatch)
	}
	for i, name := range header {
		if name != cohort.Columns[i] {
			return nil, fmt.Errorf("read csv: column %d is %q, want %q: %w",
				i, name, cohort.Columns[i], cohort.ErrShapeMismatch)
		}
	}

	var rows [][]float64
	for i := 0; ; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", i, err)
		}
		row := make([]float64, len(record))
		for j, cell := range record {
			row[j], err = strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("read csv row %d column %q: %w", i, cohort.Columns[j], err)
			}
		}
		rows = append(rows, row)
	}
	return &cohort.Table{Rows: rows}, nil
}

// WriteMatrixCSV writes an arbitrary named float matrix, one header row
// then one record per row. Used for background samples and other
// feature-only artifacts.
func WriteMatrixCSV(w io.Writer, names []string, X [][]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write matrix header: %w", err)
	}
	record := make([]string, len(names))
	for i, row := range X {
		if len(row) != len(names) {
			return fmt.Errorf("write matrix: row %d has width %d, want %d: %w",
				i, len(row), len(names), cohort.ErrShapeMismatch)
		}
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write matrix row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMatrixCSV parses a matrix written by WriteMatrixCSV.
func ReadMatrixCSV(r io.Reader) (names []string, X [][]float64, err error) {
	cr := csv.NewReader(r)
	names, err = cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read matrix header: %w", err)
	}
	for i := 0; ; i++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read matrix row %d: %w", i, err)
		}
		row := make([]float64, len(record))
		for j, cell := range record {
			row[j], err = strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("read matrix row %d column %d: %w", i, j, err)
			}
		}
		X = append(X, row)
	}
	return names, X, nil
}
