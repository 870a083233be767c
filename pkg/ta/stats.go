package ta

import (
	"math"

	"github.com/markcheno/go-talib"
)

func Sum(s []float64) float64 {
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total
}

func Mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return Sum(s) / float64(len(s))
}

// SampleStdDev 样本标准差（n-1），少于2个点时返回0
func SampleStdDev(s []float64) float64 {
	n := len(s)
	if n < 2 {
		return 0
	}
	mean := Mean(s)
	acc := 0.0
	for _, v := range s {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(n-1))
}

// Variance 总体方差，基于 talib.Var 取整段序列的最后一个值
func Variance(s []float64) float64 {
	n := len(s)
	if n < 2 {
		return 0
	}
	out := talib.Var(s, n)
	v := out[n-1]
	// talib 以 E[x²]-E[x]² 计算，可能出现极小的负数
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite 将 NaN/Inf 替换为 fallback
func Finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
