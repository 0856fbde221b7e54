package kvstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/reducer"
)

func TestApplySetAndDel(t *testing.T) {
	r := Reducer{}
	st := reducer.State(NewMap(nil))

	setX, err := Set("x", "1", nil)
	require.NoError(t, err)
	st, err = r.Apply(st, setX)
	require.NoError(t, err)
	assert.Equal(t, Map{"x": "1"}, st)

	delX, err := Del("x", event.NewFrontier(setX.ID))
	require.NoError(t, err)
	st, err = r.Apply(st, delX)
	require.NoError(t, err)
	assert.Equal(t, Map{}, st)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	r := Reducer{}
	before := NewMap(map[string]string{"x": "0"})

	setX, err := Set("x", "1", nil)
	require.NoError(t, err)
	_, err = r.Apply(before, setX)
	require.NoError(t, err)

	assert.Equal(t, Map{"x": "0"}, before)
}

func TestDecodeRejections(t *testing.T) {
	badKind := event.MustNew("other", []byte(`{}`), nil)
	_, err := Decode(badKind)
	assert.True(t, reducer.IsConflict(err))

	badOp := event.MustNew(Kind, []byte(`{"op":"inc","key":"x"}`), nil)
	_, err = Decode(badOp)
	assert.True(t, reducer.IsConflict(err))

	emptyKey := event.MustNew(Kind, []byte(`{"op":"set","key":""}`), nil)
	_, err = Decode(emptyKey)
	assert.True(t, reducer.IsConflict(err))

	garbage := event.MustNew(Kind, []byte(`not json`), nil)
	_, err = Decode(garbage)
	require.Error(t, err)
	assert.False(t, reducer.IsConflict(err), "malformed payloads are infrastructure errors")
}

func TestCommuteMatrix(t *testing.T) {
	mk := func(op, key, value string) event.Event {
		return event.MustNew(Kind, Payload(op, key, value), nil)
	}
	r := Reducer{}

	cases := []struct {
		name string
		a, b event.Event
		want bool
	}{
		{"disjoint keys", mk(OpSet, "x", "1"), mk(OpSet, "y", "2"), true},
		{"same key different values", mk(OpSet, "x", "1"), mk(OpSet, "x", "2"), false},
		{"set vs del same key", mk(OpSet, "x", "1"), mk(OpDel, "x", ""), false},
		{"two dels same key", mk(OpDel, "x", ""), mk(OpDel, "x", ""), true},
		{"del vs set other key", mk(OpDel, "x", ""), mk(OpSet, "y", "2"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Commute(tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			// Symmetry is part of the contract.
			rev, err := r.Commute(tc.b, tc.a)
			require.NoError(t, err)
			assert.Equal(t, got, rev)
		})
	}
}

func TestResolve(t *testing.T) {
	a := event.MustNew(Kind, Payload(OpSet, "x", "1"), nil)
	b := event.MustNew(Kind, Payload(OpSet, "x", "2"), nil)
	lo, hi := a, b
	if lo.ID > hi.ID {
		lo, hi = hi, lo
	}

	order, err := Reducer{}.Resolve(lo, hi)
	require.NoError(t, err)
	assert.Equal(t, reducer.Unresolved, order, "no auto-resolution by default")

	order, err = Reducer{LWW: true}.Resolve(lo, hi)
	require.NoError(t, err)
	assert.Equal(t, reducer.FirstThenSecond, order, "larger id applied last")
}

func TestPayloadCanonical(t *testing.T) {
	assert.Equal(t, Payload(OpSet, "x", "1"), Payload(OpSet, "x", "1"))
	assert.Equal(t, `{"key":"x","op":"del"}`, string(Payload(OpDel, "x", "")))
	assert.Equal(t, `{"key":"x","op":"set","value":"1"}`, string(Payload(OpSet, "x", "1")))
}

func TestMapEqual(t *testing.T) {
	assert.True(t, NewMap(map[string]string{"a": "1"}).Equal(NewMap(map[string]string{"a": "1"})))
	assert.False(t, NewMap(map[string]string{"a": "1"}).Equal(NewMap(map[string]string{"a": "2"})))
	assert.False(t, NewMap(map[string]string{"a": "1"}).Equal(NewMap(nil)))
	assert.False(t, NewMap(nil).Equal(nil))
}
