package rules

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldstore/store"
)

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	base := []store.Option{
		store.WithScheduler(store.NewManualScheduler()),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s := store.New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Destroy() })
	return s
}

func validate(t *testing.T, s *store.Store, path string) store.Result {
	t.Helper()
	r, ok := s.Validate(path).Result()
	require.True(t, ok, "rule validators are synchronous")
	return r
}

func TestCUE_Constraint(t *testing.T) {
	v, err := CUE("range", `int & >0 & <=10`, "must be 1..10")
	require.NoError(t, err)
	assert.Equal(t, "range", v.Name())

	tests := []struct {
		name  string
		value any
		ok    bool
	}{
		{"in range", 5, true},
		{"upper bound", 10, true},
		{"zero", 0, false},
		{"too big", 11, false},
		{"wrong type", "5", false},
		{"null", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			s.Register("n", store.WithMode(store.ModeControlled), store.WithInitialValue(tt.value), store.WithValidator(v))

			r := validate(t, s, "n")
			assert.Equal(t, tt.ok, r.OK)
			if !tt.ok {
				assert.Equal(t, "must be 1..10", r.Message)
			}
		})
	}
}

func TestCUE_DefaultMessageIsCUEError(t *testing.T) {
	v, err := CUE("format", `=~"@"`, "")
	require.NoError(t, err)
	s := newStore(t)
	s.Register("email", store.WithInitialValue("bad"), store.WithValidator(v))

	r := validate(t, s, "email")

	assert.False(t, r.OK)
	assert.Contains(t, r.Message, "out of bound")
}

func TestCUE_CompileError(t *testing.T) {
	_, err := CUE("broken", `int &`, "")

	require.Error(t, err)
	var re *RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "broken", re.Rule)
	assert.Equal(t, LangCUE, re.Lang)
}

func TestCUE_ConcurrentChecks(t *testing.T) {
	v, err := CUE("string", `string`, "not a string")
	require.NoError(t, err)
	s := newStore(t)
	for _, p := range []string{"a", "b", "c", "d"} {
		s.Register(p, store.WithInitialValue(p), store.WithValidator(v))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, p := range s.Paths() {
				r, _ := s.Validate(p).Result()
				assert.True(t, r.OK)
			}
		}()
	}
	wg.Wait()
}

func TestExpr_Boolean(t *testing.T) {
	v, err := Expr("min3", `len(value) >= 3`, "at least 3 characters")
	require.NoError(t, err)
	s := newStore(t)
	s.Register("name", store.WithMode(store.ModeControlled), store.WithInitialValue("ab"), store.WithValidator(v))

	r := validate(t, s, "name")
	assert.Equal(t, store.Result{Message: "at least 3 characters"}, r)

	s.SetControlledValue("name", "abc")
	assert.True(t, validate(t, s, "name").OK)
}

func TestExpr_SeesFieldFlags(t *testing.T) {
	v, err := Expr("touched-required", `!touched || value != ""`, "required")
	require.NoError(t, err)
	s := newStore(t)
	s.Register("name", store.WithInitialValue(""), store.WithValidator(v))

	assert.True(t, validate(t, s, "name").OK, "untouched fields pass")

	s.MarkTouched("name")
	assert.Equal(t, "required", validate(t, s, "name").Message)
}

func TestExpr_PathVariable(t *testing.T) {
	v, err := Expr("path", `path == "user.email"`, "wrong path")
	require.NoError(t, err)
	s := newStore(t)
	s.Register("user.email", store.WithValidator(v))
	s.Register("other", store.WithValidator(v))

	assert.True(t, validate(t, s, "user.email").OK)
	assert.Equal(t, "wrong path", validate(t, s, "other").Message)
}

func TestExpr_RuntimeErrorFails(t *testing.T) {
	v, err := Expr("len", `len(value) > 1`, "")
	require.NoError(t, err)
	s := newStore(t)
	s.Register("n", store.WithInitialValue(5), store.WithValidator(v))

	r := validate(t, s, "n")

	assert.False(t, r.OK)
	assert.NotEmpty(t, r.Message)
}

func TestExpr_CompileErrors(t *testing.T) {
	tests := []struct {
		name       string
		expression string
	}{
		{"empty", ""},
		{"not boolean", `"abc"`},
		{"syntax", `value >`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expr(tt.name, tt.expression, "")
			require.Error(t, err)
			var re *RuleError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, LangExpr, re.Lang)
		})
	}
}

func TestPlugin_AttachesAndDetaches(t *testing.T) {
	required, err := Expr("required", `value != ""`, "required")
	require.NoError(t, err)
	format, err := CUE("format", `=~"@"`, "must contain @")
	require.NoError(t, err)

	s := newStore(t, store.WithPlugins(Plugin("rules", map[string][]*store.Validator{
		"user.email": {required, format},
		"user.name":  {required},
	})))
	s.Register("user.email", store.WithMode(store.ModeControlled), store.WithInitialValue(""))
	s.Register("user.name", store.WithInitialValue("ada"))

	assert.Equal(t, "required", validate(t, s, "user.email").Message)
	s.SetControlledValue("user.email", "bad")
	assert.Equal(t, "must contain @", validate(t, s, "user.email").Message)
	s.SetControlledValue("user.email", "a@b")
	assert.True(t, validate(t, s, "user.email").OK)
	assert.True(t, validate(t, s, "user.name").OK)

	assert.NoError(t, s.Destroy())
}

func TestRuleSpec_Build(t *testing.T) {
	_, err := RuleSpec{Name: "both", CUE: "int", Expr: "true"}.Build()
	assert.Error(t, err)

	_, err = RuleSpec{Name: "neither"}.Build()
	assert.Error(t, err)

	v, err := RuleSpec{Name: "ok", Expr: "true"}.Build()
	require.NoError(t, err)
	assert.Equal(t, "ok", v.Name())
}
