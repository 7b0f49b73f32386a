package handlers

import "github.com/holiman/uint256"

// AddChecked returns a+b, or a DomainError on overflow.
func AddChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, Fail(CodeOverflow, "overflow adding %d to %d", b, a)
	}
	return sum, nil
}

// MulDiv returns floor(a*b/d) computed without intermediate overflow.
// ok is false if d is zero or the result does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// Sqrt returns floor(sqrt(a*b)).
func Sqrt(a, b uint64) uint64 {
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return x.Sqrt(x).Uint64()
}
