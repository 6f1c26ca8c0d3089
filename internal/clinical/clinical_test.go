package clinical

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBaseline() Baseline {
	return Baseline{
		Gender:         "Female",
		Age:            54,
		SmokingHistory: "former",
		BMI:            27.5,
		HbA1c:          6.8,
		Glucose:        160,
	}
}

func TestBoundsClamp(t *testing.T) {
	b := DefaultTable()[FieldBMI]

	assert.Equal(t, -10.0, b.Clamp(-25))
	assert.Equal(t, 0.0, b.Clamp(3))
	assert.Equal(t, -4.5, b.Clamp(-4.5))
	assert.Equal(t, 0.0, b.Clamp(math.NaN()))
	assert.Equal(t, -10.0, b.Clamp(math.Inf(-1)))
}

func TestBoundsValidate(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		wantErr bool
	}{
		{"default", DefaultTable()[FieldGlucose], false},
		{"inverted", Bounds{Field: FieldBMI, Min: 0, Max: -1}, true},
		{"excludes zero", Bounds{Field: FieldBMI, Min: -5, Max: -1}, true},
		{"unknown field", Bounds{Field: "weight", Min: -1, Max: 0}, true},
		{"negative step", Bounds{Field: FieldHbA1c, Min: -1, Max: 1, Step: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bounds.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTableWithOverrides(t *testing.T) {
	table, err := DefaultTable().WithOverrides([]Bounds{{Field: FieldBMI, Min: -6, Max: 2}})
	require.NoError(t, err)

	bmi := table[FieldBMI]
	assert.Equal(t, -6.0, bmi.Min)
	assert.Equal(t, 2.0, bmi.Max)
	assert.Equal(t, 0.5, bmi.Step, "step inherited from default")
	assert.Equal(t, "Reduce BMI", bmi.Label, "label inherited from default")

	// Defaults are untouched.
	assert.Equal(t, -10.0, DefaultTable()[FieldBMI].Min)

	_, err = DefaultTable().WithOverrides([]Bounds{{Field: FieldBMI, Min: 1, Max: 2}})
	assert.Error(t, err)
}

func TestTableSorted(t *testing.T) {
	sorted := DefaultTable().Sorted()
	require.Len(t, sorted, 3)
	assert.Equal(t, FieldBMI, sorted[0].Field)
	assert.Equal(t, FieldHbA1c, sorted[1].Field)
	assert.Equal(t, FieldGlucose, sorted[2].Field)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("HbA1c_level")
	require.NoError(t, err)
	assert.Equal(t, FieldHbA1c, f)

	_, err = ParseField("hba1c")
	assert.Error(t, err)
}

func TestBaselineValidate(t *testing.T) {
	require.NoError(t, sampleBaseline().Validate())

	b := sampleBaseline()
	b.BMI = 5
	b.Gender = ""
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bmi")
	assert.Contains(t, err.Error(), "gender")
}

func TestLoadBaseline(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "patient.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
gender: Male
age: 61
hypertension: 1
heart_disease: 0
smoking_history: never
bmi: 31.2
HbA1c_level: 7.4
blood_glucose_level: 180
`), 0644))

	b, err := LoadBaseline(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 31.2, b.BMI)
	assert.Equal(t, 7.4, b.Value(FieldHbA1c))
	assert.Equal(t, 1, b.Hypertension)

	jsonPath := filepath.Join(dir, "patient.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"gender":"Female","age":40,"smoking_history":"never","bmi":22,"HbA1c_level":5.5,"blood_glucose_level":100}`), 0644))
	b, err = LoadBaseline(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 100.0, b.Value(FieldGlucose))

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("gender: Male\nbmi: 400\n"), 0644))
	_, err = LoadBaseline(badPath)
	assert.Error(t, err)

	_, err = LoadBaseline(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, RiskLow, LevelFor(0.1))
	assert.Equal(t, RiskModerate, LevelFor(0.2))
	assert.Equal(t, RiskModerate, LevelFor(0.59))
	assert.Equal(t, RiskHigh, LevelFor(0.6))
}
