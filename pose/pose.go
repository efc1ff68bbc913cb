// Package pose defines the canonical pose key used to select a filter from
// the filter store: an orientation, a position, and a custom triplet, all
// integers.
package pose

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the 9-integer tuple (yaw, pitch, roll, x, y, z, customA, customB,
// customC) that identifies a filter in the store. Keys are value types and
// are directly usable as map keys.
type Key struct {
	Yaw, Pitch, Roll int
	X, Y, Z          int
	CustomA          int
	CustomB          int
	CustomC          int
}

// Slice index ranges for the OSC subset messages (spec §4.4): orientation is
// 0..2, position is 3..5, custom is 6..8; "short" is 0..5, "full" is 0..8.
const (
	IdxOrientationStart = 0
	IdxOrientationEnd   = 3
	IdxPositionStart    = 3
	IdxPositionEnd      = 6
	IdxCustomStart      = 6
	IdxCustomEnd        = 9
	IdxShortEnd         = 6
	IdxFullEnd          = 9
)

// Values returns the key as an ordered 9-int slice, for subset updates.
func (k Key) Values() [9]int {
	return [9]int{k.Yaw, k.Pitch, k.Roll, k.X, k.Y, k.Z, k.CustomA, k.CustomB, k.CustomC}
}

// FromValues builds a Key from an ordered 9-int slice, the inverse of Values.
func FromValues(v [9]int) Key {
	return Key{
		Yaw: v[0], Pitch: v[1], Roll: v[2],
		X: v[3], Y: v[4], Z: v[5],
		CustomA: v[6], CustomB: v[7], CustomC: v[8],
	}
}

// WithSlice returns a copy of k with indices [start, end) replaced by vals;
// vals must have length end-start. Other indices are preserved, matching the
// "other indices are preserved" rule of spec §4.4.
func (k Key) WithSlice(start, end int, vals []int) (Key, error) {
	if end-start != len(vals) {
		return k, fmt.Errorf("pose: slice [%d,%d) wants %d values, got %d", start, end, end-start, len(vals))
	}
	if start < 0 || end > 9 || start > end {
		return k, fmt.Errorf("pose: slice [%d,%d) out of range", start, end)
	}
	v := k.Values()
	for i, val := range vals {
		v[start+i] = val
	}
	return FromValues(v), nil
}

// FromFilterValueList builds a Key from a 6-integer (legacy, custom defaults
// to zero) or 9-integer list, mirroring pyBinSim's Pose.from_filterValueList.
func FromFilterValueList(vals []int) (Key, error) {
	switch len(vals) {
	case 6:
		var v [9]int
		copy(v[:6], vals)
		return FromValues(v), nil
	case 9:
		var v [9]int
		copy(v[:], vals)
		return FromValues(v), nil
	default:
		return Key{}, fmt.Errorf("pose: expected 6 or 9 values, got %d", len(vals))
	}
}

// String renders the canonical key form: comma-joined decimal integers in
// (yaw, pitch, roll, x, y, z, customA, customB, customC) order. This is the
// wire/map-key format, grounded on pyBinSim's Pose.create_key.
func (k Key) String() string {
	v := k.Values()
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

// ParseKey parses the canonical comma-joined form produced by String.
func ParseKey(s string) (Key, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 9 {
		return Key{}, fmt.Errorf("pose: key %q has %d fields, want 9", s, len(fields))
	}
	var v [9]int
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Key{}, fmt.Errorf("pose: key %q: field %d: %w", s, i, err)
		}
		v[i] = n
	}
	return FromValues(v), nil
}
