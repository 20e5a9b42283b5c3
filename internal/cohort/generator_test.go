package cohort

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestGenerateCohortValidation(t *testing.T) {
	gen := NewGenerator(DefaultParams(), 1)

	t.Run("negative count", func(t *testing.T) {
		_, err := gen.GenerateCohort(-1, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	})

	t.Run("zero count keeps schema", func(t *testing.T) {
		table, err := gen.GenerateCohort(0, true)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len())
		assert.Empty(t, table.Features())

		col, err := table.Column("pulse_rate")
		require.NoError(t, err)
		assert.Empty(t, col)
	})
}

func TestGenerateCohortShape(t *testing.T) {
	gen := NewGenerator(DefaultParams(), 7)

	table, err := gen.GenerateCohort(10, true)
	require.NoError(t, err)
	require.Equal(t, 10, table.Len())

	for _, row := range table.Rows {
		assert.Len(t, row, len(Columns))
	}
	for _, label := range table.Labels() {
		assert.Equal(t, 1.0, label)
	}

	healthy, err := gen.GenerateCohort(3, false)
	require.NoError(t, err)
	for _, label := range healthy.Labels() {
		assert.Equal(t, 0.0, label)
	}
}

func TestGenerateCohortDeterminism(t *testing.T) {
	t.Run("same seed and call order", func(t *testing.T) {
		a := NewGenerator(DefaultParams(), 42)
		b := NewGenerator(DefaultParams(), 42)

		aHealthy, err := a.GenerateCohort(50, false)
		require.NoError(t, err)
		aInfected, err := a.GenerateCohort(50, true)
		require.NoError(t, err)

		bHealthy, err := b.GenerateCohort(50, false)
		require.NoError(t, err)
		bInfected, err := b.GenerateCohort(50, true)
		require.NoError(t, err)

		require.Equal(t, aHealthy.Rows, bHealthy.Rows)
		require.Equal(t, aInfected.Rows, bInfected.Rows)
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		a := NewGenerator(DefaultParams(), 1)
		b := NewGenerator(DefaultParams(), 2)

		at, err := a.GenerateCohort(5, false)
		require.NoError(t, err)
		bt, err := b.GenerateCohort(5, false)
		require.NoError(t, err)

		assert.NotEqual(t, at.Rows, bt.Rows)
	})
}

func TestGenerateCohortStatistics(t *testing.T) {
	const n = 4000

	gen := NewGenerator(DefaultParams(), 99)
	healthy, err := gen.GenerateCohort(n, false)
	require.NoError(t, err)
	infected, err := gen.GenerateCohort(n, true)
	require.NoError(t, err)

	column := func(tb *Table, name string) []float64 {
		col, err := tb.Column(name)
		require.NoError(t, err)
		return col
	}

	t.Run("shared physiology", func(t *testing.T) {
		assert.InDelta(t, 105, stat.Mean(column(healthy, "systolic_pressure"), nil), 0.8)
		assert.InDelta(t, 36.7, stat.Mean(column(healthy, "daily_avg_body_temperature"), nil), 0.01)
		assert.InDelta(t, 14, stat.Mean(column(healthy, "daily_avg_respiration_rate"), nil), 0.1)
	})

	t.Run("diastolic couples to systolic", func(t *testing.T) {
		sys := column(healthy, "systolic_pressure")
		dia := column(healthy, "diastolic_pressure")
		for i := range sys {
			ratio := dia[i] / sys[i]
			assert.Greater(t, ratio, 0.59)
			assert.Less(t, ratio, 0.75)
		}
	})

	t.Run("pulse couples to respiration", func(t *testing.T) {
		resp := column(healthy, "daily_avg_respiration_rate")
		pulse := column(healthy, "daily_avg_pulse_rate")
		factors := make([]float64, len(resp))
		for i := range resp {
			factors[i] = pulse[i] / resp[i]
			// Per-record coupling: an independent pulse draw would
			// spread this ratio far wider than the factor noise.
			assert.Greater(t, factors[i], 4.3)
			assert.Less(t, factors[i], 6.7)
		}
		assert.InDelta(t, 5.5, stat.Mean(factors, nil), 0.05)
	})

	t.Run("infection shifts respiration and pulse", func(t *testing.T) {
		healthyResp := stat.Mean(column(healthy, "respiration_rate"), nil)
		infectedResp := stat.Mean(column(infected, "respiration_rate"), nil)
		assert.InDelta(t, 1.5, infectedResp-healthyResp, 0.2)

		healthyBase := column(healthy, "daily_avg_pulse_rate")
		healthyPulse := column(healthy, "pulse_rate")
		infectedBase := column(infected, "daily_avg_pulse_rate")
		infectedPulse := column(infected, "pulse_rate")

		healthyNoise := make([]float64, n)
		infectedNoise := make([]float64, n)
		for i := 0; i < n; i++ {
			healthyNoise[i] = healthyPulse[i] - healthyBase[i]
			infectedNoise[i] = infectedPulse[i] - infectedBase[i]
		}
		assert.InDelta(t, 0, stat.Mean(healthyNoise, nil), 0.5)
		assert.InDelta(t, 10, stat.Mean(infectedNoise, nil), 0.5)
	})

	t.Run("body temperature tracks daily average", func(t *testing.T) {
		daily := column(infected, "daily_avg_body_temperature")
		temp := column(infected, "body_temperature")
		for i := range daily {
			assert.InDelta(t, daily[i], temp[i], 0.06)
		}
	})
}

func TestTableColumn(t *testing.T) {
	gen := NewGenerator(DefaultParams(), 3)
	table, err := gen.GenerateCohort(4, false)
	require.NoError(t, err)

	_, err = table.Column("heart_rate_variability")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	features := table.Features()
	require.Len(t, features, 4)
	for _, row := range features {
		assert.Len(t, row, len(FeatureColumns))
	}
}
