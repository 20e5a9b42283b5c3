package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/cohort"
	"github.com/NHSE-Data-Science-Mentorship/explainability-masterclass/internal/dataset"
)

func sampleTable(t *testing.T) *cohort.Table {
	t.Helper()
	gen := cohort.NewGenerator(cohort.DefaultParams(), 7)
	table, err := gen.GenerateCohort(4, false)
	require.NoError(t, err)
	return table
}

func TestCSVSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	runID := uuid.New()

	table := sampleTable(t)
	require.NoError(t, sink.Export(context.Background(), runID, table))

	path := sink.Path(runID)
	assert.Equal(t, filepath.Join(dir, "cohort_"+runID.String()+".csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := dataset.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, table.Rows, got.Rows)
}

func TestCSVSinkRejectsEmpty(t *testing.T) {
	sink := NewCSVSink(t.TempDir())
	err := sink.Export(context.Background(), uuid.New(), &cohort.Table{})
	require.ErrorIs(t, err, cohort.ErrInvalidArgument)
}

func TestCSVSinkHonorsContext(t *testing.T) {
	sink := NewCSVSink(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sink.Export(ctx, uuid.New(), sampleTable(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPostgresSinkValidation(t *testing.T) {
	sink := NewPostgresSink(nil)

	err := sink.Export(context.Background(), uuid.New(), &cohort.Table{})
	require.ErrorIs(t, err, cohort.ErrInvalidArgument)

	ragged := &cohort.Table{Rows: [][]float64{{1, 2, 3}}}
	err = sink.Export(context.Background(), uuid.New(), ragged)
	require.ErrorIs(t, err, cohort.ErrShapeMismatch)
}

func TestVitalsColumns(t *testing.T) {
	require.Len(t, vitalsColumns, len(cohort.Columns)+2)
	assert.Equal(t, "run_id", vitalsColumns[0])
	assert.Equal(t, "row_idx", vitalsColumns[1])
	assert.Equal(t, cohort.Columns, vitalsColumns[2:])
}
