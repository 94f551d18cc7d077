package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_TouchedNotDirty(t *testing.T) {
	s, _ := newTestStore(t)

	s.Register("email", WithInitialValue(""))
	s.MarkTouched("email")

	assert.True(t, s.Touched("email"))
	assert.False(t, s.Dirty("email"))
	assert.Equal(t, "", s.Value("email"))
}

func TestSetControlledValue_DirtyTracksInitial(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("count", WithMode(ModeControlled), WithInitialValue(1))

	s.SetControlledValue("count", 2)
	assert.Equal(t, 2, s.Value("count"))
	assert.True(t, s.Dirty("count"))

	s.SetControlledValue("count", 1)
	assert.Equal(t, 1, s.Value("count"))
	assert.False(t, s.Dirty("count"))
}

type addressValue struct {
	City  string
	Lines []string
}

func TestSetControlledValue_DirtyUsesSameValue(t *testing.T) {
	addr := addressValue{City: "Oslo", Lines: []string{"Storgata 1"}}
	tests := []struct {
		name    string
		initial any
		next    any
		dirty   bool
	}{
		{"equal ints", 3, 3, false},
		{"different ints", 3, 4, true},
		{"equal strings", "a", "a", false},
		{"nan equals nan", math.NaN(), math.NaN(), false},
		{"zero vs negative zero", 0.0, math.Copysign(0, -1), true},
		{"nil vs nil", nil, nil, false},
		{"nil vs value", nil, "x", true},
		{"int vs float", 1, 1.0, true},
		{"struct copy sharing its slice", addr, addr, false},
		{"struct with a fresh slice", addr, addressValue{City: "Oslo", Lines: []string{"Storgata 1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			s.Register("f", WithMode(ModeControlled), WithInitialValue(tt.initial))

			s.SetControlledValue("f", tt.next)
			assert.Equal(t, tt.dirty, s.Dirty("f"))

			s.SetControlledValue("f", tt.initial)
			assert.False(t, s.Dirty("f"), "returning to the initial value clears dirty")
		})
	}
}

func TestRegister_MergesIntoExisting(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("name", WithInitialValue("a"))
	s.MarkTouched("name")

	s.Register("name", WithMode(ModeControlled), WithMeta("label"))

	st, ok := s.Field("name")
	require.True(t, ok)
	assert.Equal(t, ModeControlled, st.Mode)
	assert.True(t, st.Touched, "re-registering keeps touched")
	assert.Equal(t, "a", st.Value)
	assert.Equal(t, "label", st.Meta)
	assert.Equal(t, []string{"name"}, s.Paths())
}

func TestRegister_NewInitialValueResetsDirty(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("name", WithMode(ModeControlled), WithInitialValue("a"))
	s.SetControlledValue("name", "x")
	require.True(t, s.Dirty("name"))

	s.Register("name", WithInitialValue("b"))

	st, _ := s.Field("name")
	assert.Equal(t, "b", st.Value)
	assert.Equal(t, "b", st.InitialValue)
	assert.False(t, st.Dirty)
}

func TestRegister_DefaultsToUncontrolled(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("f")

	st, ok := s.Field("f")
	require.True(t, ok)
	assert.Equal(t, ModeUncontrolled, st.Mode)
	assert.Nil(t, st.Value)
	assert.Equal(t, "", st.Error)
}

func TestUnregister_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	var unregisters int
	s.On(EventUnregister, func(Event) Cleanup {
		unregisters++
		return nil
	})

	unregister := s.Register("a")
	assert.True(t, unregister())
	assert.False(t, unregister())

	_, ok := s.Field("a")
	assert.False(t, ok)
	assert.Equal(t, 1, unregisters)
	assert.Empty(t, s.Paths())
}

func TestUnregisteredField_ReadsDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Nil(t, s.Value("missing"))
	assert.False(t, s.Touched("missing"))
	assert.False(t, s.Dirty("missing"))
	assert.Equal(t, "", s.Error("missing"))
}

func TestMisuse_WarnsAndDoesNothing(t *testing.T) {
	var buf syncBuffer
	s, _ := newTestStore(t, WithLogger(bufferLogger(&buf)))

	assert.NotPanics(t, func() {
		s.MarkTouched("ghost")
		s.MarkDirty("ghost")
		s.SetControlledValue("ghost", 1)
		s.Validate("ghost")
	})

	out := buf.String()
	assert.Contains(t, out, "markTouched on unregistered field")
	assert.Contains(t, out, "markDirty on unregistered field")
	assert.Contains(t, out, "setControlledValue on unregistered field")
	assert.Contains(t, out, "validate on unregistered field")
	assert.Empty(t, s.Paths())
}

func TestMisuse_WarningsDisabled(t *testing.T) {
	var buf syncBuffer
	s, _ := newTestStore(t, WithLogger(bufferLogger(&buf)), WithWarnings(false))

	s.MarkTouched("ghost")
	s.SetControlledValue("ghost", 1)

	assert.NotContains(t, buf.String(), "unregistered")
}

func TestSetControlledValue_SwitchesUncontrolledField(t *testing.T) {
	var buf syncBuffer
	s, _ := newTestStore(t, WithLogger(bufferLogger(&buf)))
	s.Register("f", WithInitialValue("a"))

	s.SetControlledValue("f", "b")

	st, _ := s.Field("f")
	assert.Equal(t, ModeControlled, st.Mode)
	assert.Equal(t, "b", st.Value)
	assert.True(t, st.Dirty)
	assert.Contains(t, buf.String(), "switching to controlled")
}

func TestMarkDirty_SetsFlag(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("f", WithInitialValue("a"))

	s.MarkDirty("f")
	assert.True(t, s.Dirty("f"))
}

func TestRead_RefreshesUncontrolledOnly(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("a", WithInitialValue(""))
	s.Register("b", WithMode(ModeControlled), WithInitialValue(1))

	var asked []string
	snap := s.Read(func(path string) any {
		asked = append(asked, path)
		return "typed"
	})

	assert.Equal(t, []string{"a"}, asked)
	assert.Equal(t, "typed", snap.Value("a"))
	assert.True(t, snap.Dirty("a"))
	assert.Equal(t, 1, s.Value("b"))
	assert.False(t, s.Dirty("b"))

	s.Read(func(string) any { return "" })
	assert.False(t, s.Dirty("a"), "reading back the initial value clears dirty")
}

func TestEpoch_AdvancesOnChange(t *testing.T) {
	s, _ := newTestStore(t)
	s.Register("f", WithMode(ModeControlled), WithInitialValue(0))
	before, _ := s.Field("f")

	s.SetControlledValue("f", 1)
	after, _ := s.Field("f")
	assert.Greater(t, after.Epoch, before.Epoch)

	s.SetControlledValue("f", 1)
	same, _ := s.Field("f")
	assert.Equal(t, after.Epoch, same.Epoch, "no-op set leaves the epoch alone")
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeControlled, ParseMode("controlled"))
	assert.Equal(t, ModeUncontrolled, ParseMode("uncontrolled"))
	assert.Equal(t, ModeDefault, ParseMode(""))
	assert.Equal(t, "controlled", ModeControlled.String())
}
