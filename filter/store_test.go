package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/meko-binsim/binsimd/pose"
)

// writeTestWAV writes a little-endian 16-bit PCM stereo WAV fixture with the
// given per-channel samples (already at the target length).
func writeTestWAV(t *testing.T, path string, left, right []int, sampleRate int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)

	data := make([]int, len(left)*2)
	for i := range left {
		data[2*i] = left[i]
		data[2*i+1] = right[i]
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing fixture %s: %v", path, err)
	}
}

func TestStoreLoadAndLookup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	const blockSize = 8
	const sampleRate = 44100
	const filterSize = 16 // 2 blocks

	silence := make([]int, filterSize)
	writeTestWAV(t, filepath.Join(dir, "silent.wav"), silence, silence, sampleRate)

	listPath := filepath.Join(dir, "filter_list.txt")
	listContents := "# a comment line\nFILTER 0 0 0 0 0 0 silent.wav\n"
	if err := os.WriteFile(listPath, []byte(listContents), 0o644); err != nil {
		t.Fatalf("writing filter list: %v", err)
	}

	store, err := Load(listPath, LoadConfig{
		BlockSize:  blockSize,
		SampleRate: sampleRate,
		FilterSize: filterSize,
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	k := mustKey(0, 0, 0, 0, 0, 0)

	f := store.GetEarly(k)
	if f.Blocks() != 2 {
		t.Errorf("expected 2 blocks, got %d", f.Blocks())
	}

	// Missing key falls back to the all-zero default, not a crash.
	other := store.GetEarly(mustKey(1, 2, 3, 4, 5, 6))
	if other == nil {
		t.Fatal("expected non-nil default filter for missing key")
	}
	if other != store.defaultEarly {
		t.Error("expected missing key to return the store's default filter")
	}
}

func TestStoreLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 does-not-exist.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{BlockSize: 8, SampleRate: 44100, FilterSize: 16})
	if err == nil {
		t.Error("expected error for missing referenced file, got nil")
	}
}

func TestStoreLoadMalformedLineFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 a.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{BlockSize: 8, SampleRate: 44100, FilterSize: 16})
	if err == nil {
		t.Error("expected error for malformed pose key, got nil")
	}
}

func TestStoreSampleRateMismatchFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 22050)

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 a.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{BlockSize: 8, SampleRate: 44100, FilterSize: 16})
	if err == nil {
		t.Error("expected error for sample rate mismatch, got nil")
	}
}

func TestStoreLoadRejectsDuplicatePoseKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 44100)
	writeTestWAV(t, filepath.Join(dir, "b.wav"), make([]int, 16), make([]int, 16), 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	listContents := "FILTER 0 0 0 0 0 0 a.wav\nFILTER 0 0 0 0 0 0 b.wav\n"
	if err := os.WriteFile(listPath, []byte(listContents), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{BlockSize: 8, SampleRate: 44100, FilterSize: 16})
	if err == nil {
		t.Error("expected error for duplicate FILTER pose key, got nil")
	}
}

func TestStoreLoadRejectsDuplicateLateReverbPoseKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 44100)
	writeTestWAV(t, filepath.Join(dir, "b.wav"), make([]int, 16), make([]int, 16), 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	listContents := "LATEREVERB 0 0 0 0 0 0 a.wav\nLATEREVERB 0 0 0 0 0 0 b.wav\n"
	if err := os.WriteFile(listPath, []byte(listContents), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{
		BlockSize: 8, SampleRate: 44100, FilterSize: 16,
		LateReverbSize: 16, UseSplitFilters: true,
	})
	if err == nil {
		t.Error("expected error for duplicate LATEREVERB pose key, got nil")
	}
}

func TestStoreLoadRejectsDuplicateHeadphoneEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 44100)
	writeTestWAV(t, filepath.Join(dir, "b.wav"), make([]int, 16), make([]int, 16), 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	listContents := "HPFILTER a.wav\nHPFILTER b.wav\n"
	if err := os.WriteFile(listPath, []byte(listContents), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{
		BlockSize: 8, SampleRate: 44100, FilterSize: 16,
		HeadphoneFilterSize: 16, UseHeadphoneFilter: true,
	})
	if err == nil {
		t.Error("expected error for duplicate HPFILTER entry, got nil")
	}
}

func TestHeadphoneFilterRequiredWhenEnabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "a.wav"), make([]int, 16), make([]int, 16), 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 a.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(listPath, LoadConfig{
		BlockSize: 8, SampleRate: 44100, FilterSize: 16,
		UseHeadphoneFilter: true,
	})
	if err == nil {
		t.Error("expected error when useHeadphoneFilter is set but no HPFILTER entry exists")
	}
}

func mustKey(vals ...int) pose.Key {
	var v [6]int
	copy(v[:], vals)
	k, err := pose.FromFilterValueList(v[:])
	if err != nil {
		panic(err)
	}
	return k
}
