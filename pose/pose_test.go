package pose

import "testing"

func TestKeyStringParseRoundTrip(t *testing.T) {
	t.Parallel()

	k := Key{Yaw: 10, Pitch: -5, Roll: 0, X: 1, Y: 2, Z: 3, CustomA: 7, CustomB: 8, CustomC: 9}

	s := k.String()

	got, err := ParseKey(s)
	if err != nil {
		t.Fatalf("ParseKey(%q) returned error: %v", s, err)
	}

	if got != k {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
	}
}

func TestParseKeyCanonicalForm(t *testing.T) {
	t.Parallel()

	got, err := ParseKey("1,2,3,4,5,6,7,8,9")
	if err != nil {
		t.Fatalf("ParseKey returned error: %v", err)
	}

	want := Key{Yaw: 1, Pitch: 2, Roll: 3, X: 4, Y: 5, Z: 6, CustomA: 7, CustomB: 8, CustomC: 9}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseKeyWrongFieldCount(t *testing.T) {
	t.Parallel()

	if _, err := ParseKey("1,2,3"); err == nil {
		t.Error("expected error for short key, got nil")
	}
}

func TestFromFilterValueListLegacySix(t *testing.T) {
	t.Parallel()

	k, err := FromFilterValueList([]int{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Key{Yaw: 1, Pitch: 2, Roll: 3, X: 4, Y: 5, Z: 6}
	if k != want {
		t.Errorf("got %+v, want %+v", k, want)
	}
}

func TestFromFilterValueListNine(t *testing.T) {
	t.Parallel()

	k, err := FromFilterValueList([]int{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Key{Yaw: 1, Pitch: 2, Roll: 3, X: 4, Y: 5, Z: 6, CustomA: 7, CustomB: 8, CustomC: 9}
	if k != want {
		t.Errorf("got %+v, want %+v", k, want)
	}
}

func TestFromFilterValueListBadLength(t *testing.T) {
	t.Parallel()

	if _, err := FromFilterValueList([]int{1, 2}); err == nil {
		t.Error("expected error for 2-element list, got nil")
	}
}

func TestWithSliceOrientation(t *testing.T) {
	t.Parallel()

	k := Key{X: 1, Y: 2, Z: 3, CustomA: 7, CustomB: 8, CustomC: 9}

	got, err := k.WithSlice(IdxOrientationStart, IdxOrientationEnd, []int{10, 20, 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Key{Yaw: 10, Pitch: 20, Roll: 30, X: 1, Y: 2, Z: 3, CustomA: 7, CustomB: 8, CustomC: 9}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWithSliceLengthMismatch(t *testing.T) {
	t.Parallel()

	k := Key{}
	if _, err := k.WithSlice(0, 3, []int{1, 2}); err == nil {
		t.Error("expected error for length mismatch, got nil")
	}
}

func TestKeyEquality(t *testing.T) {
	t.Parallel()

	a := Key{Yaw: 1, X: 2}
	b := Key{Yaw: 1, X: 2}
	c := Key{Yaw: 1, X: 3}

	if a != b {
		t.Error("expected equal keys to compare equal")
	}
	if a == c {
		t.Error("expected differing keys to compare unequal")
	}

	// Keys must be directly usable as map keys.
	m := map[Key]int{a: 1}
	if _, ok := m[b]; !ok {
		t.Error("expected b to hash/equal to the same map slot as a")
	}
}
