package mathx

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ClampInt limits v to [lo, hi]. When lo > hi the result is lo, matching
// max(lo, min(hi, v)).
func ClampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// Abs32 returns |v| as an unsigned value; |MinInt32| is 2147483648.
func Abs32(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}
