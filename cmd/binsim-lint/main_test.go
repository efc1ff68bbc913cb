package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeFixtureWAV(t *testing.T, path string, samples int, sampleRate int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	data := make([]int, samples*2)
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

func TestRunValidatesAGoodFilterList(t *testing.T) {
	dir := t.TempDir()
	*blockSize, *filterSize, *lateReverbSize, *headphoneSize, *sampleRate = 8, 16, 0, 0, 44100
	defer func() { *blockSize, *filterSize, *lateReverbSize, *headphoneSize, *sampleRate = 256, 16384, 0, 0, 44100 }()

	writeFixtureWAV(t, filepath.Join(dir, "silent.wav"), 16, 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 silent.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(listPath); err != nil {
		t.Fatalf("expected a valid filter list to lint cleanly, got: %v", err)
	}
}

func TestRunRequireHeadphoneRejectsListWithoutHPFilter(t *testing.T) {
	dir := t.TempDir()
	*blockSize, *filterSize, *lateReverbSize, *headphoneSize, *sampleRate, *requireHeadphone = 8, 16, 0, 0, 44100, true
	defer func() {
		*blockSize, *filterSize, *lateReverbSize, *headphoneSize, *sampleRate, *requireHeadphone = 256, 16384, 0, 0, 44100, false
	}()

	writeFixtureWAV(t, filepath.Join(dir, "silent.wav"), 16, 44100)

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 silent.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(listPath); err == nil {
		t.Error("expected -require-headphone to reject a list with no HPFILTER entry")
	}
}

func TestRunRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	*blockSize, *filterSize = 8, 16
	defer func() { *blockSize, *filterSize = 256, 16384 }()

	listPath := filepath.Join(dir, "filter_list.txt")
	if err := os.WriteFile(listPath, []byte("FILTER 0 0 0 0 0 0 missing.wav\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := run(listPath); err == nil {
		t.Error("expected an error for a filter list referencing a missing file")
	}
}
