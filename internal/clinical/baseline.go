package clinical

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Baseline is the patient's unmodified clinical profile. It is the zero point
// for every simulated scenario and is never mutated by the engine.
type Baseline struct {
	Gender         string  `yaml:"gender" json:"gender"`
	Age            float64 `yaml:"age" json:"age"`
	Hypertension   int     `yaml:"hypertension" json:"hypertension"`
	HeartDisease   int     `yaml:"heart_disease" json:"heart_disease"`
	SmokingHistory string  `yaml:"smoking_history" json:"smoking_history"`
	BMI            float64 `yaml:"bmi" json:"bmi"`
	HbA1c          float64 `yaml:"HbA1c_level" json:"HbA1c_level"`
	Glucose        float64 `yaml:"blood_glucose_level" json:"blood_glucose_level"`
}

// Value returns the baseline value of a simulateable field.
func (b Baseline) Value(f Field) float64 {
	switch f {
	case FieldBMI:
		return b.BMI
	case FieldHbA1c:
		return b.HbA1c
	case FieldGlucose:
		return b.Glucose
	}
	return 0
}

// Validate enforces the intake form ranges.
func (b Baseline) Validate() error {
	var errs []error
	if strings.TrimSpace(b.Gender) == "" {
		errs = append(errs, errors.New("gender is required"))
	}
	if strings.TrimSpace(b.SmokingHistory) == "" {
		errs = append(errs, errors.New("smoking_history is required"))
	}
	check := func(name string, v, lo, hi float64) {
		if v < lo || v > hi {
			errs = append(errs, fmt.Errorf("%s %v outside [%v, %v]", name, v, lo, hi))
		}
	}
	check("age", b.Age, 0, 120)
	check("bmi", b.BMI, 10, 100)
	check("HbA1c_level", b.HbA1c, 2, 20)
	check("blood_glucose_level", b.Glucose, 50, 500)
	if b.Hypertension != 0 && b.Hypertension != 1 {
		errs = append(errs, fmt.Errorf("hypertension must be 0 or 1, got %d", b.Hypertension))
	}
	if b.HeartDisease != 0 && b.HeartDisease != 1 {
		errs = append(errs, fmt.Errorf("heart_disease must be 0 or 1, got %d", b.HeartDisease))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid baseline: %w", errors.Join(errs...))
	}
	return nil
}

// LoadBaseline reads a baseline profile from a YAML or JSON file.
func LoadBaseline(path string) (Baseline, error) {
	var b Baseline
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("failed to read baseline: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &b)
	default:
		err = yaml.Unmarshal(data, &b)
	}
	if err != nil {
		return b, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return b, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// RiskLevel buckets a risk probability the way the scoring backend does.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// LevelFor classifies a risk in [0,1].
func LevelFor(risk float64) RiskLevel {
	switch {
	case risk < 0.2:
		return RiskLow
	case risk < 0.6:
		return RiskModerate
	default:
		return RiskHigh
	}
}
