package common

import (
	"errors"
	"math"
)

var (
	// ErrAmountOverflow indicates a 64-bit accumulation would wrap.
	ErrAmountOverflow = errors.New("amount overflows 64 bits")
	// ErrAmountUnderflow indicates a subtraction below zero.
	ErrAmountUnderflow = errors.New("amount underflows")
)

// AddUint64 returns a+b, rejecting results outside the 64-bit range.
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// SubUint64 returns a-b, rejecting negative results.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrAmountUnderflow
	}
	return a - b, nil
}
