package filter

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meko-binsim/binsimd/internal/ratelog"
	"github.com/meko-binsim/binsimd/pose"
)

// ErrFilterAsset is the sentinel error kind for filter-list/WAV problems
// detected at startup (spec §7: "Filter asset" errors abort initialization).
var ErrFilterAsset = errors.New("filter asset")

// LoadConfig carries the sizing and feature-flag parameters needed to
// interpret a filter list (spec §4.2, §6).
type LoadConfig struct {
	BlockSize           int
	SampleRate          int
	FilterSize          int // IR_early, samples
	LateReverbSize      int // IR_late, samples; 0 if splitting is disabled
	HeadphoneFilterSize int // IR_hp, samples; 0 if headphone filter disabled
	UseSplitFilters     bool
	UseHeadphoneFilter  bool
}

// record is one parsed, not-yet-decoded filter-list line.
type record struct {
	kind recordKind
	key  pose.Key
	path string
}

type recordKind int

const (
	kindEarly recordKind = iota
	kindLate
	kindHeadphone
)

// Store is the immutable, pose-keyed filter dictionary. Constructed once at
// startup; read-only (and wait-free to read) thereafter.
type Store struct {
	early        map[pose.Key]*Filter
	late         map[pose.Key]*Filter
	headphone    *Filter
	defaultEarly *Filter
	defaultLate  *Filter
	warnMissing  *ratelog.Limiter
}

// Load parses the filter list at listPath, decodes and preprocesses every
// referenced WAV file, and returns a ready-to-use Store. Any missing file,
// sample-rate mismatch, or malformed line aborts with a wrapped
// ErrFilterAsset (spec §4.2 load procedure, step 1: fail fast).
func Load(listPath string, cfg LoadConfig) (*Store, error) {
	records, err := parseFilterList(listPath)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(listPath)

	// Verify every referenced file exists before decoding any of them.
	for _, r := range records {
		full := resolvePath(baseDir, r.path)
		if _, err := os.Stat(full); err != nil {
			return nil, fmt.Errorf("%w: referenced file missing: %s", ErrFilterAsset, full)
		}
	}

	s := &Store{
		early:       make(map[pose.Key]*Filter),
		late:        make(map[pose.Key]*Filter),
		warnMissing: ratelog.NewLimiter(),
	}

	var haveHeadphone bool

	for _, r := range records {
		full := resolvePath(baseDir, r.path)

		class, expectedLen := classFor(r.kind, cfg)

		f, err := loadOne(full, cfg.SampleRate, cfg.BlockSize, expectedLen, class)
		if err != nil {
			return nil, err
		}

		switch r.kind {
		case kindEarly:
			if _, dup := s.early[r.key]; dup {
				return nil, fmt.Errorf("%w: duplicate FILTER pose key %s in %s", ErrFilterAsset, r.key.String(), listPath)
			}
			s.early[r.key] = f
		case kindLate:
			if _, dup := s.late[r.key]; dup {
				return nil, fmt.Errorf("%w: duplicate LATEREVERB pose key %s in %s", ErrFilterAsset, r.key.String(), listPath)
			}
			s.late[r.key] = f
		case kindHeadphone:
			if haveHeadphone {
				return nil, fmt.Errorf("%w: duplicate HPFILTER entry in %s", ErrFilterAsset, listPath)
			}
			s.headphone = f
			haveHeadphone = true
		}
	}

	if cfg.UseHeadphoneFilter && !haveHeadphone {
		return nil, fmt.Errorf("%w: useHeadphoneFilter is set but no HPFILTER entry found in %s", ErrFilterAsset, listPath)
	}

	earlyBlocks := blockCount(cfg.FilterSize, cfg.BlockSize)
	s.defaultEarly = ZeroFilter(cfg.BlockSize, earlyBlocks)

	if cfg.UseSplitFilters {
		lateBlocks := blockCount(cfg.LateReverbSize, cfg.BlockSize)
		s.defaultLate = ZeroFilter(cfg.BlockSize, lateBlocks)
	}

	return s, nil
}

func classFor(kind recordKind, cfg LoadConfig) (Class, int) {
	switch kind {
	case kindEarly:
		return ClassEarly, cfg.FilterSize
	case kindLate:
		return ClassLate, cfg.LateReverbSize
	case kindHeadphone:
		return ClassHeadphone, cfg.HeadphoneFilterSize
	default:
		return ClassEarly, cfg.FilterSize
	}
}

func blockCount(irSamples, blockSize int) int {
	n := irSamples / blockSize
	if n == 0 {
		n = 1
	}
	return n
}

// loadOne decodes path, conforms it to expectedLen (zero-pad short, truncate
// long with a warning), reshapes into (blocks, B), applies the class's fade,
// and forward-FFTs each block (spec §4.2 load procedure, step 2).
func loadOne(path string, sampleRate, blockSize, expectedLen int, class Class) (*Filter, error) {
	left, right, fileRate, err := decodeWAV(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFilterAsset, err)
	}

	if fileRate != sampleRate {
		return nil, fmt.Errorf("%w: %s: sample rate %d Hz, want %d Hz", ErrFilterAsset, path, fileRate, sampleRate)
	}

	left = conformLength(left, expectedLen, path)
	right = conformLength(right, expectedLen, path)

	leftBlocks := reshapeToBlocks(left, blockSize)
	rightBlocks := reshapeToBlocks(right, blockSize)

	f, err := NewFromBlocks(leftBlocks, rightBlocks, blockSize, class)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrFilterAsset, path, err)
	}
	return f, nil
}

// conformLength zero-pads on the right if samples is shorter than want, or
// truncates on the right (with a warning) if longer.
func conformLength(samples []float32, want int, path string) []float32 {
	if want <= 0 || len(samples) == want {
		return samples
	}
	if len(samples) < want {
		out := make([]float32, want)
		copy(out, samples)
		return out
	}
	slog.Warn("filter: truncating filter longer than configured size", "path", path, "have", len(samples), "want", want)
	return samples[:want]
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// parseFilterList parses the text format of spec §4.2: one record per line,
// blank lines and lines starting with # are ignored, the last whitespace
// token is a WAV path, and the leading tokens select the record kind and
// pose key.
func parseFilterList(listPath string) ([]record, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening filter list %s: %s", ErrFilterAsset, listPath, err)
	}
	defer f.Close()

	var records []record

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 1 {
			continue
		}

		path := fields[len(fields)-1]
		tokens := fields[:len(fields)-1]

		r, err := parseRecord(tokens, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %s", ErrFilterAsset, listPath, lineNo, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %s", ErrFilterAsset, listPath, err)
	}

	return records, nil
}

func parseRecord(tokens []string, path string) (record, error) {
	kind := kindEarly
	rest := tokens

	if len(tokens) > 0 {
		switch strings.ToUpper(tokens[0]) {
		case "HPFILTER":
			return record{kind: kindHeadphone, path: path}, nil
		case "FILTER":
			kind = kindEarly
			rest = tokens[1:]
		case "LATEREVERB":
			kind = kindLate
			rest = tokens[1:]
		}
	}

	if len(rest) != 6 && len(rest) != 9 {
		return record{}, fmt.Errorf("expected 6 or 9 integers, got %d", len(rest))
	}

	vals := make([]int, len(rest))
	for i, tok := range rest {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return record{}, fmt.Errorf("non-integer pose field %q: %w", tok, err)
		}
		vals[i] = n
	}

	key, err := pose.FromFilterValueList(vals)
	if err != nil {
		return record{}, err
	}

	return record{kind: kind, key: key, path: path}, nil
}

// GetEarly returns the early/short filter for k, or the all-zero default if
// no such key was loaded, logging a warning at most once per missed key.
func (s *Store) GetEarly(k pose.Key) *Filter {
	if f, ok := s.early[k]; ok {
		return f
	}
	s.warnMissing.Once("early:"+k.String(), func() {
		slog.Warn("filter: no early filter for pose key, using silent default", "key", k.String())
	})
	return s.defaultEarly
}

// GetLate returns the late-reverb filter for k, or the all-zero default.
func (s *Store) GetLate(k pose.Key) *Filter {
	if f, ok := s.late[k]; ok {
		return f
	}
	s.warnMissing.Once("late:"+k.String(), func() {
		slog.Warn("filter: no late-reverb filter for pose key, using silent default", "key", k.String())
	})
	return s.defaultLate
}

// GetHeadphone returns the headphone compensation filter, or nil if none was
// configured.
func (s *Store) GetHeadphone() *Filter {
	return s.headphone
}
