// Package config parses the text configuration file and flag overrides
// described in spec §6, grounded on pyBinSim's BinSimConfig key/value
// format and defaults.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config is the fully resolved set of startup options (spec §6 table).
type Config struct {
	SoundFile           string
	BlockSize           int
	FilterSize          int
	LateReverbSize      int
	HeadphoneFilterSize int
	FilterList          string
	EnableCrossfading   bool
	UseHeadphoneFilter  bool
	UseSplittedFilters  bool
	LoudnessFactor      float64
	MaxChannels         int
	SamplingRate        int
	LoopSound           bool
	OSCAddr             string
}

// Default returns the option table's documented defaults (spec §6).
func Default() Config {
	return Config{
		SoundFile:           "",
		BlockSize:           256,
		FilterSize:          16384,
		LateReverbSize:      0,
		HeadphoneFilterSize: 0,
		FilterList:          "brirs/filter_list.txt",
		EnableCrossfading:   false,
		UseHeadphoneFilter:  false,
		UseSplittedFilters:  false,
		LoudnessFactor:      1,
		MaxChannels:         8,
		SamplingRate:        44100,
		LoopSound:           true,
		OSCAddr:             "127.0.0.1:10000",
	}
}

// field describes one configuration key for the text-file parser: its
// target pointer and how to parse a string into it.
type field struct {
	set func(value string) error
}

// fields returns the key -> field table for c, mirroring BinSimConfig's
// configurationDict.
func (c *Config) fields() map[string]field {
	return map[string]field{
		"soundfile":           {func(v string) error { c.SoundFile = v; return nil }},
		"blockSize":           {intField(&c.BlockSize)},
		"filterSize":          {intField(&c.FilterSize)},
		"lateReverbSize":      {intField(&c.LateReverbSize)},
		"headphoneFilterSize": {intField(&c.HeadphoneFilterSize)},
		"filterList":          {func(v string) error { c.FilterList = v; return nil }},
		"enableCrossfading":   {boolField(&c.EnableCrossfading)},
		"useHeadphoneFilter":  {boolField(&c.UseHeadphoneFilter)},
		"useSplittedFilters":  {boolField(&c.UseSplittedFilters)},
		"loudnessFactor":      {floatField(&c.LoudnessFactor)},
		"maxChannels":         {intField(&c.MaxChannels)},
		"samplingRate":        {intField(&c.SamplingRate)},
		"loopSound":           {boolField(&c.LoopSound)},
		"oscAddr":             {func(v string) error { c.OSCAddr = v; return nil }},
	}
}

func intField(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatField(dst *float64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolField(dst *bool) func(string) error {
	return func(v string) error {
		b, err := parseStrictBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

// parseStrictBool accepts only the literal, case-sensitive spellings "True"
// and "False" (spec §6: "the only valid boolean spellings"), matching
// application.py's parse_boolean rather than Go's permissive
// strconv.ParseBool.
func parseStrictBool(v string) (bool, error) {
	switch v {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, fmt.Errorf("expected \"True\" or \"False\", got %q", v)
	}
}

// ReadFile loads key/value pairs from path into c, starting from whatever
// values c already holds (spec §6: "a config file plus flag overrides").
// Unknown keys are logged and skipped, matching BinSimConfig's behavior.
func ReadFile(c *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	fields := c.fields()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return fmt.Errorf("config: %s:%d: expected \"key value\", got %q", path, lineNo, line)
		}
		key, value := parts[0], parts[1]

		f, ok := fields[key]
		if !ok {
			slog.Warn("config: unknown key, ignoring", "key", key, "file", path, "line", lineNo)
			continue
		}
		if err := f.set(value); err != nil {
			return fmt.Errorf("config: %s:%d: key %q: %w", path, lineNo, key, err)
		}
	}
	return scanner.Err()
}

// RegisterFlags binds c's fields to fs as overridable flags, matching the
// teacher's main.go style (flag.String/Int/Bool/Float64 on a FlagSet).
// Call Apply after flag.Parse to layer CLI overrides on top of the file.
func RegisterFlags(fs *flag.FlagSet) *Overrides {
	o := &Overrides{
		soundFile:      fs.String("soundfile", "", "sound file(s) to play, '#'-separated"),
		blockSize:      fs.Int("blockSize", 0, "processing block size in samples (0 = use config file value)"),
		filterSize:     fs.Int("filterSize", 0, "early/short filter length in samples (0 = use config file value)"),
		lateReverbSize: fs.Int("lateReverbSize", 0, "late-reverb filter length in samples (0 = use config file value)"),
		hpFilterSize:   fs.Int("headphoneFilterSize", 0, "headphone filter length in samples (0 = use config file value)"),
		filterList:     fs.String("filterList", "", "path to the filter list file"),
		crossfade:      fs.String("enableCrossfading", "", "True/False: crossfade on early filter change"),
		headphone:      fs.String("useHeadphoneFilter", "", "True/False: apply headphone compensation"),
		split:          fs.String("useSplittedFilters", "", "True/False: use split early/late convolution"),
		loudness:       fs.Float64("loudnessFactor", 0, "output gain multiplier (0 = use config file value)"),
		maxChannels:    fs.Int("maxChannels", 0, "maximum number of simultaneous input channels (0 = use config file value)"),
		samplingRate:   fs.Int("samplingRate", 0, "expected sample rate in Hz (0 = use config file value)"),
		loop:           fs.String("loopSound", "", "True/False: loop the sound file playlist"),
		oscAddr:        fs.String("oscAddr", "", "address to listen for OSC control messages on"),
	}
	return o
}

// Overrides holds the flag values RegisterFlags bound; Apply layers any
// explicitly-set flag on top of a Config read from file.
type Overrides struct {
	soundFile      *string
	blockSize      *int
	filterSize     *int
	lateReverbSize *int
	hpFilterSize   *int
	filterList     *string
	crossfade      *string
	headphone      *string
	split          *string
	loudness       *float64
	maxChannels    *int
	samplingRate   *int
	loop           *string
	oscAddr        *string
}

// Apply overwrites c's fields with any override that was actually set on
// the command line (non-zero for numeric flags, non-empty for string/bool
// flags expressed as tri-state strings).
func (o *Overrides) Apply(c *Config) error {
	if *o.soundFile != "" {
		c.SoundFile = *o.soundFile
	}
	if *o.blockSize != 0 {
		c.BlockSize = *o.blockSize
	}
	if *o.filterSize != 0 {
		c.FilterSize = *o.filterSize
	}
	if *o.lateReverbSize != 0 {
		c.LateReverbSize = *o.lateReverbSize
	}
	if *o.hpFilterSize != 0 {
		c.HeadphoneFilterSize = *o.hpFilterSize
	}
	if *o.filterList != "" {
		c.FilterList = *o.filterList
	}
	if *o.loudness != 0 {
		c.LoudnessFactor = *o.loudness
	}
	if *o.maxChannels != 0 {
		c.MaxChannels = *o.maxChannels
	}
	if *o.samplingRate != 0 {
		c.SamplingRate = *o.samplingRate
	}
	if *o.oscAddr != "" {
		c.OSCAddr = *o.oscAddr
	}

	var err error
	if c.EnableCrossfading, err = applyTriBool(*o.crossfade, c.EnableCrossfading); err != nil {
		return fmt.Errorf("config: -enableCrossfading: %w", err)
	}
	if c.UseHeadphoneFilter, err = applyTriBool(*o.headphone, c.UseHeadphoneFilter); err != nil {
		return fmt.Errorf("config: -useHeadphoneFilter: %w", err)
	}
	if c.UseSplittedFilters, err = applyTriBool(*o.split, c.UseSplittedFilters); err != nil {
		return fmt.Errorf("config: -useSplittedFilters: %w", err)
	}
	if c.LoopSound, err = applyTriBool(*o.loop, c.LoopSound); err != nil {
		return fmt.Errorf("config: -loopSound: %w", err)
	}
	return nil
}

// applyTriBool returns current unchanged when flagValue is empty (the flag
// was not set), else the parsed boolean.
func applyTriBool(flagValue string, current bool) (bool, error) {
	if flagValue == "" {
		return current, nil
	}
	return parseStrictBool(flagValue)
}

// Validate checks the cross-field invariants spec §6/§7 require before
// startup proceeds.
func (c *Config) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("config: blockSize must be positive, got %d", c.BlockSize)
	}
	if c.FilterSize <= 0 {
		return fmt.Errorf("config: filterSize must be positive, got %d", c.FilterSize)
	}
	if c.FilterSize%c.BlockSize != 0 {
		return fmt.Errorf("config: filterSize (%d) must be an exact multiple of blockSize (%d)", c.FilterSize, c.BlockSize)
	}
	if c.UseSplittedFilters && c.LateReverbSize <= 0 {
		return fmt.Errorf("config: useSplittedFilters is set but lateReverbSize is %d", c.LateReverbSize)
	}
	if c.UseSplittedFilters && c.LateReverbSize%c.BlockSize != 0 {
		return fmt.Errorf("config: lateReverbSize (%d) must be an exact multiple of blockSize (%d)", c.LateReverbSize, c.BlockSize)
	}
	if c.UseHeadphoneFilter && c.HeadphoneFilterSize <= 0 {
		return fmt.Errorf("config: useHeadphoneFilter is set but headphoneFilterSize is %d", c.HeadphoneFilterSize)
	}
	if c.UseHeadphoneFilter && c.HeadphoneFilterSize%c.BlockSize != 0 {
		return fmt.Errorf("config: headphoneFilterSize (%d) must be an exact multiple of blockSize (%d)", c.HeadphoneFilterSize, c.BlockSize)
	}
	if c.MaxChannels <= 0 {
		return fmt.Errorf("config: maxChannels must be positive, got %d", c.MaxChannels)
	}
	if c.SamplingRate <= 0 {
		return fmt.Errorf("config: samplingRate must be positive, got %d", c.SamplingRate)
	}
	return nil
}
