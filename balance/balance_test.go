package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

func imbalanced(neg, pos int) (X [][]float64, y []int) {
	for i := 0; i < neg; i++ {
		X = append(X, []float64{float64(i), 0.5})
		y = append(y, 0)
	}
	for i := 0; i < pos; i++ {
		X = append(X, []float64{float64(1000 + i), 0.9})
		y = append(y, 1)
	}
	return X, y
}

func classCounts(y []int) (neg, pos int) {
	for _, label := range y {
		if label == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(core.BalancerKind("smote"))
	require.Error(t, err)
}

func TestPassthrough(t *testing.T) {
	b, err := New(core.BalanceNone)
	require.NoError(t, err)
	require.Equal(t, core.BalanceNone, b.Kind())

	X, y := imbalanced(6, 4)
	outX, outY := b.Balance(X, y, 42)
	assert.Equal(t, X, outX)
	assert.Equal(t, y, outY)
}

func TestUndersampling(t *testing.T) {
	b, err := New(core.BalanceRUS)
	require.NoError(t, err)
	require.Equal(t, core.BalanceRUS, b.Kind())

	X, y := imbalanced(60, 40)
	outX, outY := b.Balance(X, y, 42)

	neg, pos := classCounts(outY)
	require.Equal(t, 40, neg)
	require.Equal(t, 40, pos)
	require.Len(t, outX, 80)

	// Every surviving row is one of the originals, untouched.
	originals := make(map[float64][]float64, len(X))
	for _, row := range X {
		originals[row[0]] = row
	}
	for _, row := range outX {
		assert.Equal(t, originals[row[0]], row)
	}
}

func TestOversampling(t *testing.T) {
	b, err := New(core.BalanceROS)
	require.NoError(t, err)
	require.Equal(t, core.BalanceROS, b.Kind())

	X, y := imbalanced(60, 40)
	outX, outY := b.Balance(X, y, 42)

	neg, pos := classCounts(outY)
	require.Equal(t, 60, neg)
	require.Equal(t, 60, pos)
	require.Len(t, outX, 120)

	// All originals survive; the extra rows are duplicated positives.
	seen := make(map[float64]int)
	for _, row := range outX {
		seen[row[0]]++
	}
	for _, row := range X {
		assert.GreaterOrEqual(t, seen[row[0]], 1)
	}
}

func TestBalanceDeterministic(t *testing.T) {
	for _, kind := range []core.BalancerKind{core.BalanceRUS, core.BalanceROS} {
		t.Run(string(kind), func(t *testing.T) {
			b, err := New(kind)
			require.NoError(t, err)

			X, y := imbalanced(30, 10)
			x1, y1 := b.Balance(X, y, 7)
			x2, y2 := b.Balance(X, y, 7)
			require.Equal(t, x1, x2)
			require.Equal(t, y1, y2)

			x3, _ := b.Balance(X, y, 8)
			assert.NotEqual(t, x1, x3)
		})
	}
}

func TestBalanceSingleClassNoOp(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}}
	y := []int{0, 0}
	for _, kind := range []core.BalancerKind{core.BalanceRUS, core.BalanceROS} {
		b, err := New(kind)
		require.NoError(t, err)
		outX, outY := b.Balance(X, y, 1)
		assert.Equal(t, X, outX)
		assert.Equal(t, y, outY)
	}
}
