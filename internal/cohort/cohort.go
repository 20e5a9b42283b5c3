// Package cohort defines the patient-vitals schema and the Gaussian
// recipe used to synthesize healthy and infected study cohorts.
package cohort

import (
	"errors"
	"fmt"
)

// Columns lists the record fields in wire/CSV order. The last column is
// the infection label (1.0 infected, 0.0 healthy).
var Columns = []string{
	"systolic_pressure",
	"diastolic_pressure",
	"daily_avg_body_temperature",
	"body_temperature",
	"daily_avg_respiration_rate",
	"respiration_rate",
	"daily_avg_pulse_rate",
	"pulse_rate",
	"infection",
}

// FeatureColumns is Columns without the trailing label.
var FeatureColumns = Columns[:len(Columns)-1]

// LabelColumn is the name of the class column.
const LabelColumn = "infection"

// Shared error kinds. Stages wrap these with context naming the failing
// operation; callers match with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrShapeMismatch   = errors.New("shape mismatch")
)

// Gaussian holds the parameters of a single normal draw.
type Gaussian struct {
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stddev"`
}

// NoiseRegime bundles the label-dependent noise terms of the recipe.
type NoiseRegime struct {
	Respiration Gaussian `yaml:"respiration"`
	Pulse       Gaussian `yaml:"pulse"`
}

// Params is the complete vitals recipe: the shared physiology draws plus
// one noise regime per class.
type Params struct {
	Systolic       Gaussian    `yaml:"systolic"`
	DiastolicRatio Gaussian    `yaml:"diastolic_ratio"`
	DailyAvgTemp   Gaussian    `yaml:"daily_avg_temp"`
	TempNoise      Gaussian    `yaml:"temp_noise"`
	DailyAvgResp   Gaussian    `yaml:"daily_avg_resp"`
	PulseFactor    Gaussian    `yaml:"pulse_factor"`
	Healthy        NoiseRegime `yaml:"healthy"`
	Infected       NoiseRegime `yaml:"infected"`
}

// DefaultParams returns the study constants.
func DefaultParams() Params {
	return Params{
		Systolic:       Gaussian{Mean: 105, StdDev: 10},
		DiastolicRatio: Gaussian{Mean: 2.0 / 3.0, StdDev: 0.01},
		DailyAvgTemp:   Gaussian{Mean: 36.7, StdDev: 0.05},
		TempNoise:      Gaussian{Mean: 0, StdDev: 0.01},
		DailyAvgResp:   Gaussian{Mean: 14, StdDev: 0.8},
		PulseFactor:    Gaussian{Mean: 5.5, StdDev: 0.2},
		Healthy: NoiseRegime{
			Respiration: Gaussian{Mean: 0, StdDev: 0.5},
			Pulse:       Gaussian{Mean: 0, StdDev: 4},
		},
		Infected: NoiseRegime{
			Respiration: Gaussian{Mean: 1.5, StdDev: 0.4},
			Pulse:       Gaussian{Mean: 10, StdDev: 5},
		},
	}
}

// Table is a cohort of records, row-major, in Columns order.
type Table struct {
	Rows [][]float64
}

// Len reports the number of records.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx := -1
	for i, c := range Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q: %w", name, ErrInvalidArgument)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Features returns copies of the feature part of every record.
func (t *Table) Features() [][]float64 {
	out := make([][]float64, len(t.Rows))
	for i, row := range t.Rows {
		f := make([]float64, len(FeatureColumns))
		copy(f, row[:len(FeatureColumns)])
		out[i] = f
	}
	return out
}

// Labels returns a copy of the infection column.
func (t *Table) Labels() []float64 {
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[len(Columns)-1]
	}
	return out
}
