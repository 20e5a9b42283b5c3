package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
)

func TestCSVRoundTrip(t *testing.T) {
	gen := cohort.NewGenerator(cohort.DefaultParams(), 13)
	table, err := BuildTable(gen, 5, 5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, table.Rows, got.Rows)
}

func TestWriteCSVEmptyTableKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &cohort.Table{}))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	in := "a,b,c\n1,2,3\n"
	_, err := ReadCSV(strings.NewReader(in))
	assert.True(t, errors.Is(err, cohort.ErrShapeMismatch))
}

func TestWriteCSVRejectsRaggedRow(t *testing.T) {
	table := &cohort.Table{Rows: [][]float64{{1, 2, 3}}}
	var buf bytes.Buffer
	err := WriteCSV(&buf, table)
	assert.True(t, errors.Is(err, cohort.ErrShapeMismatch))
}

func TestMatrixCSVRoundTrip(t *testing.T) {
	names := []string{"resp", "pulse"}
	X := [][]float64{{14.25, 77.5}, {15.1, 92.034}}

	var buf bytes.Buffer
	require.NoError(t, WriteMatrixCSV(&buf, names, X))

	gotNames, gotX, err := ReadMatrixCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, names, gotNames)
	require.Equal(t, X, gotX)
}
