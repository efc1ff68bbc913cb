package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meko-binsim/binsimd/config"
	"github.com/meko-binsim/binsimd/control"
	"github.com/meko-binsim/binsimd/device"
	"github.com/meko-binsim/binsimd/filter"
	"github.com/meko-binsim/binsimd/pipeline"
	"github.com/meko-binsim/binsimd/source"
	"github.com/meko-binsim/binsimd/webui"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (spec §6 key/value format)")
	noTUI := flag.Bool("no-tui", false, "disable the interactive terminal monitor")
	noWeb := flag.Bool("no-web", false, "disable the web monitoring server")
	webPort := flag.Int("web-port", 8080, "web monitoring server port")
	headless := flag.Bool("headless", false, "use a null audio device instead of PortAudio (for testing)")
	logFile := flag.String("log", "binsimd.log", "log file path")
	showHelp := flag.Bool("help", false, "show this help message")

	cfg := config.Default()
	overrides := config.RegisterFlags(flag.CommandLine)

	flag.Parse()

	if *showHelp {
		//nolint:forbidigo // CLI help output requires fmt.Println
		fmt.Println("binsimd — real-time dynamic binaural synthesis")
		//nolint:forbidigo // CLI help output requires fmt.Println
		fmt.Println("\nUsage: binsimd -config binsim.cfg [options]")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *configFile != "" {
		if err := config.ReadFile(&cfg, *configFile); err != nil {
			//nolint:forbidigo // critical error output before logging is initialized
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	}
	if err := overrides.Apply(&cfg); err != nil {
		//nolint:forbidigo // critical error output before logging is initialized
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		//nolint:forbidigo // critical error output before logging is initialized
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		//nolint:forbidigo // error output before logging is initialized
		fmt.Printf("Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	logger := slog.New(slog.NewTextHandler(file, nil))
	slog.SetDefault(logger)
	slog.Info("starting binsimd", "args", os.Args, "config", cfg)

	store, err := filter.Load(cfg.FilterList, filter.LoadConfig{
		BlockSize:           cfg.BlockSize,
		SampleRate:          cfg.SamplingRate,
		FilterSize:          cfg.FilterSize,
		LateReverbSize:      cfg.LateReverbSize,
		HeadphoneFilterSize: cfg.HeadphoneFilterSize,
		UseSplitFilters:     cfg.UseSplittedFilters,
		UseHeadphoneFilter:  cfg.UseHeadphoneFilter,
	})
	if err != nil {
		slog.Error("failed to load filter store", "err", err)
		//nolint:forbidigo // critical error output to user
		fmt.Printf("ERROR: failed to load filter store: %v\n", err)
		os.Exit(1)
	}
	slog.Info("filter store loaded", "list", cfg.FilterList)

	src := source.New(source.Config{
		BlockSize:   cfg.BlockSize,
		MaxChannels: cfg.MaxChannels,
		SampleRate:  cfg.SamplingRate,
		Loop:        cfg.LoopSound,
	})
	defer src.Close()

	if cfg.SoundFile != "" {
		src.RequestFileList(cfg.SoundFile)
	}

	state := control.NewState(cfg.MaxChannels)

	pipe, err := pipeline.New(pipeline.Config{
		BlockSize:           cfg.BlockSize,
		MaxChannels:         cfg.MaxChannels,
		FilterSize:          cfg.FilterSize,
		LateReverbSize:      cfg.LateReverbSize,
		HeadphoneFilterSize: cfg.HeadphoneFilterSize,
		EnableCrossfading:   cfg.EnableCrossfading,
		UseSplitFilters:     cfg.UseSplittedFilters,
		UseHeadphoneFilter:  cfg.UseHeadphoneFilter,
		LoudnessFactor:      float32(cfg.LoudnessFactor),
	}, store, src, state)
	if err != nil {
		slog.Error("failed to build audio pipeline", "err", err)
		//nolint:forbidigo // critical error output to user
		fmt.Printf("ERROR: failed to build audio pipeline: %v\n", err)
		os.Exit(1)
	}

	receiver := control.NewReceiver(cfg.OSCAddr, state)
	go func() {
		if err := receiver.ListenAndServe(); err != nil {
			slog.Error("OSC receiver stopped", "err", err)
		}
	}()

	var dev device.Device
	if *headless {
		dev = device.NewNullDevice(float64(cfg.SamplingRate), cfg.BlockSize)
	} else {
		pa, err := device.NewPortAudioDevice(float64(cfg.SamplingRate), cfg.BlockSize)
		if err != nil {
			slog.Error("failed to initialize audio device", "err", err)
			//nolint:forbidigo // critical error output to user
			fmt.Printf("ERROR: failed to initialize audio device: %v\n", err)
			os.Exit(1)
		}
		dev = pa
	}

	if err := dev.Start(pipe.Process); err != nil {
		slog.Error("failed to start audio device", "err", err)
		//nolint:forbidigo // critical error output to user
		fmt.Printf("ERROR: failed to start audio device: %v\n", err)
		os.Exit(1)
	}
	defer dev.Stop()
	slog.Info("audio device started", "sampleRate", dev.SampleRate(), "blockSize", dev.BlockSize())

	var webServer *webui.Server
	if !*noWeb {
		webServer = webui.NewServer(&stateMonitor{state: state, pipe: pipe}, *webPort)
		go func() {
			if err := webServer.Start(); err != nil {
				slog.Error("web monitoring server stopped", "err", err)
			}
		}()
		//nolint:forbidigo // startup message
		fmt.Printf("Monitoring UI available at http://localhost:%d\n", *webPort)
	}

	if *noTUI {
		//nolint:forbidigo // headless mode startup message
		fmt.Println("binsimd running. TUI disabled. Press Ctrl+C to exit.")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	} else {
		runTUI(state, pipe)
	}

	slog.Info("shutting down")
	if webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := webServer.Shutdown(ctx); err != nil {
			slog.Error("web server shutdown error", "err", err)
		}
	}
}
