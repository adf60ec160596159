package setexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBasicAlgebra(t *testing.T) {
	slots := map[int]IDSet{
		1: NewIDSet(1, 2, 3),
		2: NewIDSet(2, 3, 4),
	}

	tests := []struct {
		name string
		expr string
		want IDSet
	}{
		{name: "intersection", expr: "c1 and c2", want: NewIDSet(2, 3)},
		{name: "intersection symbol", expr: "c1 * c2", want: NewIDSet(2, 3)},
		{name: "union", expr: "c1 or c2", want: NewIDSet(1, 2, 3, 4)},
		{name: "union symbol", expr: "c1 + c2", want: NewIDSet(1, 2, 3, 4)},
		{name: "single slot", expr: "c1", want: NewIDSet(1, 2, 3)},
		{name: "parenthesized", expr: "(c1 and c2) or c1", want: NewIDSet(1, 2, 3)},
		{name: "and binds tighter than or", expr: "c1 or c2 and c2", want: NewIDSet(1, 2, 3, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, slots)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want.Values(), got.Values())
		})
	}
}

func TestEvaluateUnionExample(t *testing.T) {
	got, err := Evaluate("c1 or c2", map[int]IDSet{1: NewIDSet(1, 2), 2: NewIDSet(3)})
	require.NoError(t, err)
	assert.True(t, NewIDSet(1, 2, 3).Equal(got))
}

func TestEvaluateEmptyExpression(t *testing.T) {
	// One slot: identity bypass, the parser is never consulted.
	got, err := Evaluate("", map[int]IDSet{1: NewIDSet(5, 6)})
	require.NoError(t, err)
	assert.True(t, NewIDSet(5, 6).Equal(got))

	// Zero slots: empty set, meaning no restriction for the caller.
	got, err = Evaluate("", map[int]IDSet{})
	require.NoError(t, err)
	assert.Empty(t, got)

	// More than one slot with no expression is a designer error.
	_, err = Evaluate("", map[int]IDSet{1: NewIDSet(1), 2: NewIDSet(2)})
	var invalid *InvalidExpressionError
	require.ErrorAs(t, err, &invalid)
}

func TestEvaluateInvalidExpressions(t *testing.T) {
	slots := map[int]IDSet{1: NewIDSet(1), 2: NewIDSet(2)}

	tests := []struct {
		name string
		expr string
	}{
		{name: "out of range slot", expr: "c3"},
		{name: "unbalanced open paren", expr: "(c1 and c2"},
		{name: "unbalanced close paren", expr: "c1 and c2)"},
		{name: "unknown token", expr: "c1 xor c2"},
		{name: "dangling operator", expr: "c1 and"},
		{name: "leading binary operator", expr: "and c1"},
		{name: "adjacent operands", expr: "c1 c2"},
		{name: "stray character", expr: "c1 & c2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr, slots)
			var invalid *InvalidExpressionError
			require.ErrorAs(t, err, &invalid, "expression %q", tt.expr)
		})
	}
}

func TestEvaluateNotRequiresUniverse(t *testing.T) {
	slots := map[int]IDSet{1: NewIDSet(1, 2), 2: NewIDSet(2, 3)}

	_, err := Evaluate("c1 and not c2", slots)
	var invalid *InvalidExpressionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "universe")

	universe := NewIDSet(1, 2, 3, 4)
	got, err := EvaluateWithUniverse("c1 and not c2", slots, universe)
	require.NoError(t, err)
	assert.True(t, NewIDSet(1).Equal(got))

	got, err = EvaluateWithUniverse("not c1", slots, universe)
	require.NoError(t, err)
	assert.True(t, NewIDSet(3, 4).Equal(got))

	got, err = EvaluateWithUniverse("- c1", slots, universe)
	require.NoError(t, err)
	assert.True(t, NewIDSet(3, 4).Equal(got))
}

func TestEvaluateResultIsSubsetOfSlotUnion(t *testing.T) {
	slots := map[int]IDSet{
		1: NewIDSet(1, 2, 3, 10),
		2: NewIDSet(2, 3, 4),
		3: NewIDSet(5, 10),
	}
	union := IDSet{}
	for _, s := range slots {
		union = union.Union(s)
	}

	exprs := []string{
		"c1 and c2",
		"c1 or c2 or c3",
		"(c1 or c2) and c3",
		"c1 and (c2 or c3)",
		"((c1))",
	}
	for _, expr := range exprs {
		got, err := Evaluate(expr, slots)
		require.NoError(t, err, "expression %q", expr)
		for id := range got {
			assert.True(t, union.Contains(id), "expression %q produced id %d outside the slot union", expr, id)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		slotCount int
		wantErr   bool
	}{
		{name: "ok", expr: "c1 and c2", slotCount: 2},
		{name: "ok with not", expr: "c1 and not c2", slotCount: 2},
		{name: "empty single", expr: "", slotCount: 1},
		{name: "empty zero", expr: "", slotCount: 0},
		{name: "empty multi", expr: "", slotCount: 2, wantErr: true},
		{name: "out of range", expr: "c3", slotCount: 2, wantErr: true},
		{name: "unbalanced", expr: "(c1 and c2", slotCount: 2, wantErr: true},
		{name: "dangling", expr: "c1 or", slotCount: 2, wantErr: true},
		{name: "unknown word", expr: "c1 nand c2", slotCount: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr, tt.slotCount)
			if tt.wantErr {
				var invalid *InvalidExpressionError
				require.ErrorAs(t, err, &invalid)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUsesComplement(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{expr: "c1 and not c2", want: true},
		{expr: "not c1", want: true},
		{expr: "c1 - c2", want: true},
		{expr: "c1 and c2", want: false},
		{expr: "c1 + c2", want: false},
		{expr: "", want: false},
		{expr: "c1 &&& garbage", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, UsesComplement(tt.expr), "expression %q", tt.expr)
	}
}

func TestIDSetOperations(t *testing.T) {
	a := NewIDSet(1, 2, 3)
	b := NewIDSet(3, 4)

	assert.True(t, a.Intersect(b).Equal(NewIDSet(3)))
	assert.True(t, a.Union(b).Equal(NewIDSet(1, 2, 3, 4)))
	assert.True(t, a.Diff(b).Equal(NewIDSet(1, 2)))
	assert.Equal(t, []int64{1, 2, 3}, a.Values())
	assert.False(t, a.Equal(b))
}
