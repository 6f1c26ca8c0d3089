package delta

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twinsim/internal/clinical"
)

func TestStore_SetClamps(t *testing.T) {
	s := NewStore(nil)

	got, changed := s.Set(clinical.FieldBMI, -25)
	assert.True(t, changed)
	assert.Equal(t, -10.0, got)

	got, changed = s.Set(clinical.FieldHbA1c, 1.5)
	assert.False(t, changed, "clamped to the current zero offset")
	assert.Equal(t, 0.0, got)

	got, changed = s.Set(clinical.FieldGlucose, -20)
	assert.True(t, changed)
	assert.Equal(t, -20.0, got)

	assert.Equal(t, -10.0, s.Get(clinical.FieldBMI))
	assert.False(t, s.IsZero())
}

func TestStore_UnknownFieldIgnored(t *testing.T) {
	s := NewStore(nil)
	notified := 0
	s.Subscribe(func(Set) { notified++ })

	_, changed := s.Set("weight", -3)
	assert.False(t, changed)
	assert.Equal(t, 0, notified)
	assert.True(t, s.IsZero())
}

func TestStore_NotifiesOnlyOnChange(t *testing.T) {
	s := NewStore(nil)
	var seen []Set
	s.Subscribe(func(d Set) { seen = append(seen, d) })

	s.Set(clinical.FieldBMI, -5)
	s.Set(clinical.FieldBMI, -5)
	s.Set(clinical.FieldBMI, -3)

	require.Len(t, seen, 2)
	assert.Equal(t, -5.0, seen[0].Get(clinical.FieldBMI))
	assert.Equal(t, -3.0, seen[1].Get(clinical.FieldBMI))
}

func TestStore_ListenersInOrder(t *testing.T) {
	s := NewStore(nil)
	var order []string
	s.Subscribe(func(Set) { order = append(order, "first") })
	s.Subscribe(func(Set) { order = append(order, "second") })

	s.Set(clinical.FieldGlucose, -5)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(nil)
	notified := 0
	s.Subscribe(func(Set) { notified++ })

	assert.False(t, s.Reset(), "resetting an all-zero store is not a mutation")

	s.Set(clinical.FieldBMI, -2)
	s.Set(clinical.FieldHbA1c, -1)
	assert.True(t, s.Reset())
	assert.True(t, s.IsZero())
	assert.Equal(t, 3, notified)
}

func TestStore_Nudge(t *testing.T) {
	s := NewStore(nil)

	for i := 0; i < 3; i++ {
		s.Nudge(clinical.FieldHbA1c, -1)
	}
	assert.InDelta(t, -0.3, s.Get(clinical.FieldHbA1c), 1e-9)

	got, changed := s.Nudge(clinical.FieldHbA1c, 10)
	assert.True(t, changed)
	assert.Equal(t, 0.0, got, "clamped at max")

	got, _ = s.Nudge(clinical.FieldGlucose, -100)
	assert.Equal(t, -50.0, got, "clamped at min")
}

func TestStore_SnapshotIsIndependent(t *testing.T) {
	s := NewStore(nil)
	s.Set(clinical.FieldBMI, -5)

	snap := s.Snapshot()
	s.Set(clinical.FieldBMI, -4)

	assert.Equal(t, -5.0, snap.Get(clinical.FieldBMI))
	assert.False(t, snap.Equal(s.Snapshot()))
}

func TestSet_Apply(t *testing.T) {
	b := clinical.Baseline{BMI: 27.5, HbA1c: 6.5, Glucose: 140}
	d := Set{}.With(clinical.FieldBMI, -3).With(clinical.FieldGlucose, -20)

	want := clinical.Values{
		clinical.FieldBMI:     24.5,
		clinical.FieldHbA1c:   6.5,
		clinical.FieldGlucose: 120,
	}
	if diff := cmp.Diff(want, d.Apply(b)); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_String(t *testing.T) {
	d := Set{}.With(clinical.FieldBMI, -3)
	assert.Equal(t, "{bmi=-3 HbA1c_level=+0 blood_glucose_level=+0}", d.String())
}
