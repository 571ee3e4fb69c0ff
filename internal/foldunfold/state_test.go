package foldunfold

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

func opStrings(ops []Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func TestObtainUnfolds(t *testing.T) {
	t.Parallel()

	f := testFolder(perm.PredOf(x))
	require.NoError(t, f.obtain(perm.AccOf(val(x))))

	assert.True(t, unfoldedNode(x).Equal(f.held), "got %s", f.held)
	assert.Equal(t, []string{"unfold acc(Node(x))"}, opStrings(f.takeOps()))
}

func TestObtainUnfoldsNestedInstances(t *testing.T) {
	t.Parallel()

	f := testFolder(perm.PredOf(x))
	require.NoError(t, f.obtain(perm.AccOf(val(next(x)))))

	want := perm.NewSet(perm.AccOf(val(x)), perm.AccOf(next(x))).Union(unfoldedNode(next(x)))
	assert.True(t, want.Equal(f.held), "got %s", f.held)
	assert.Equal(t, []string{"unfold acc(Node(x))", "unfold acc(Node(x.next))"}, opStrings(f.ops))
}

func TestObtainFolds(t *testing.T) {
	t.Parallel()

	f := testFolder(unfoldedNode(x).Slice()...)
	require.NoError(t, f.obtain(perm.PredOf(x)))
	assert.True(t, perm.NewSet(perm.PredOf(x)).Equal(f.held))
	assert.Equal(t, []string{"fold acc(Node(x))"}, opStrings(f.ops))

	deep := perm.NewSet(perm.AccOf(val(x)), perm.AccOf(next(x))).Union(unfoldedNode(next(x)))
	f = testFolder(deep.Slice()...)
	require.NoError(t, f.obtain(perm.PredOf(x)))
	assert.True(t, perm.NewSet(perm.PredOf(x)).Equal(f.held))
	assert.Equal(t, []string{"fold acc(Node(x.next))", "fold acc(Node(x))"}, opStrings(f.ops))
}

func TestUnfoldThenFoldIsIdentity(t *testing.T) {
	t.Parallel()

	f := testFolder(perm.PredOf(x))
	require.NoError(t, f.unfold(x, true))
	require.NoError(t, f.fold(x, true))
	assert.True(t, perm.NewSet(perm.PredOf(x)).Equal(f.held))
}

func TestFailedObtainLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	// Acc(x.next) is missing, so Node(x) cannot be folded.
	start := perm.NewSet(perm.AccOf(val(x))).Union(unfoldedNode(next(x)))
	f := testFolder(start.Slice()...)

	err := f.obtain(perm.PredOf(x))
	var pe *PermissionError
	require.True(t, errors.As(err, &pe))
	assert.True(t, perm.AccOf(next(x)).Equal(pe.Perm), "got %s", pe.Perm)
	assert.True(t, start.Equal(f.held))
	assert.Empty(t, f.ops)
}

func TestObtainMissing(t *testing.T) {
	t.Parallel()

	f := testFolder(perm.AccOf(fld(a)))
	err := f.obtain(perm.AccOf(fld(b)))
	var pe *PermissionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "missing permission acc(b.f): not held and not derivable by fold or unfold", pe.Error())
}

func TestRootPlacesAreAlwaysAccessible(t *testing.T) {
	t.Parallel()

	f := testFolder()
	assert.NoError(t, f.obtain(perm.AccOf(x)))
	assert.Empty(t, f.ops)
}

func TestAbstractPredicatesCannotBeOpened(t *testing.T) {
	t.Parallel()

	o := vir.NewPlace(vir.LocalVar{Name: "o", Type: vir.RefType("Opaque")})
	f := testFolder(perm.PredOf(o))
	err := f.obtain(perm.AccOf(o.Field("secret", vir.IntType())))
	var pe *PermissionError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "abstract")
	assert.True(t, perm.NewSet(perm.PredOf(o)).Equal(f.held))
}

func TestOpString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   Op
		want string
	}{
		{Op{Kind: OpFold, Perm: perm.PredOf(x), Pred: "Node"}, "fold acc(Node(x))"},
		{predOp(OpExhale, perm.PredOf(next(x))), "exhale acc(Node(x.next))"},
		{predOp(OpExhale, perm.AccOf(val(x))), "exhale acc(x.val)"},
		{predOp(OpInhale, perm.PredOf(val(x))), "inhale acc(pred(x.val))"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}
