package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndSum(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 6.0, Sum([]float64{1, 2, 3}))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestSampleStdDev(t *testing.T) {
	assert.Equal(t, 0.0, SampleStdDev([]float64{1}))
	assert.Equal(t, 0.0, SampleStdDev([]float64{2, 2, 2}))
	// 2,4,4,4,5,5,7,9 样本方差 32/7
	assert.InDelta(t, math.Sqrt(32.0/7.0), SampleStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, Variance([]float64{5}))
	assert.InDelta(t, 0.0, Variance([]float64{3, 3, 3}), 1e-9)
	// 总体方差 (1,2,3) = 2/3
	assert.InDelta(t, 2.0/3.0, Variance([]float64{1, 2, 3}), 1e-9)
}

func TestClampAndFinite(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 7.0, Finite(math.Inf(1), 7))
	assert.Equal(t, 7.0, Finite(math.NaN(), 7))
	assert.Equal(t, 3.0, Finite(3, 7))
}
