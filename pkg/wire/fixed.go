// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import "math"

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat converts v, rounding to the nearest 1/256.
func FixedFromFloat(v float64) Fixed {
	return Fixed(math.Round(v * 256))
}

// FixedFromInt converts an integer without loss.
func FixedFromInt(v int) Fixed {
	return Fixed(v * 256)
}

// Float returns f as a float64.
func (f Fixed) Float() float64 {
	return float64(f) / 256
}

// Int returns the integer part of f, truncated toward zero.
func (f Fixed) Int() int {
	return int(f) / 256
}
