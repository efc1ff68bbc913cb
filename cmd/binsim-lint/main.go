// Command binsim-lint validates a filter list against the sizing
// parameters it will actually be loaded with, without starting the
// audio pipeline.
//
// Usage:
//
//	binsim-lint [options] <filter-list>
//
// Options:
//
//	-blockSize        Processing block size in samples
//	-filterSize       Early/short filter length in samples
//	-lateReverbSize   Late-reverb filter length in samples (0 disables split mode)
//	-headphoneSize    Headphone filter length in samples (0 disables headphone mode)
//	-sampleRate       Expected sample rate in Hz
//	-require-headphone Fail if the filter list has no HPFILTER entry
//	-verbose          Print the sizing parameters used and whether a headphone
//	                  filter was loaded (individual filter keys are not listed)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/meko-binsim/binsimd/filter"
)

var (
	blockSize        = flag.Int("blockSize", 256, "processing block size in samples")
	filterSize       = flag.Int("filterSize", 16384, "early/short filter length in samples")
	lateReverbSize   = flag.Int("lateReverbSize", 0, "late-reverb filter length in samples (0 disables split mode)")
	headphoneSize    = flag.Int("headphoneSize", 0, "headphone filter length in samples (0 disables headphone mode)")
	sampleRate       = flag.Int("sampleRate", 44100, "expected sample rate in Hz")
	requireHeadphone = flag.Bool("require-headphone", false, "fail if the filter list has no HPFILTER entry")
	verbose          = flag.Bool("verbose", false, "print the sizing parameters and whether a headphone filter was loaded")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <filter-list>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Validates a filter list file without starting the audio pipeline.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(listPath string) error {
	cfg := filter.LoadConfig{
		BlockSize:           *blockSize,
		SampleRate:          *sampleRate,
		FilterSize:          *filterSize,
		LateReverbSize:      *lateReverbSize,
		HeadphoneFilterSize: *headphoneSize,
		UseSplitFilters:     *lateReverbSize > 0,
		UseHeadphoneFilter:  *headphoneSize > 0 || *requireHeadphone,
	}

	store, err := filter.Load(listPath, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("OK: %s loaded successfully\n", listPath)
	if *verbose {
		fmt.Printf("  blockSize=%d filterSize=%d lateReverbSize=%d headphoneSize=%d sampleRate=%d\n",
			cfg.BlockSize, cfg.FilterSize, cfg.LateReverbSize, cfg.HeadphoneFilterSize, cfg.SampleRate)
		if store.GetHeadphone() != nil {
			fmt.Println("  headphone filter: present")
		}
	}

	return nil
}
