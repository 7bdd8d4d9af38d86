package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"hessianshape/internal/logger"
	"hessianshape/pkg/config"
	"hessianshape/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "hessianshape.yaml", "YAML configuration file (defaults are used if it does not exist)")
	envFile := flag.String("env", ".env", "Environment file with HESSIANSHAPE_* overrides")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	input := flag.String("input", "", "Volume file (.vol, .vol.zst) or directory of 2D slices; empty generates a synthetic volume")
	outputDir := flag.String("output", "", "Output directory (overrides the configuration)")
	scales := flag.String("scales", "", "Comma separated Gaussian scales, e.g. 1,2,4 (overrides the configuration)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides the configuration)")
	useOtsu := flag.Bool("otsu", false, "Suppress background below the Otsu threshold before analysis")
	syntheticKind := flag.String("synthetic", "", "Synthetic volume kind: polynomial, tube or blob (overrides the configuration)")
	exportSlices := flag.Bool("export-slices", false, "Save PNG slices of the results along all axes")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write default configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply environment: %v\n", err)
		os.Exit(1)
	}

	// Command line flags take precedence over file and environment
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *scales != "" {
		parsed, err := config.ParseScales(*scales)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -scales: %v\n", err)
			os.Exit(1)
		}
		cfg.Analysis.Scales = parsed
	}
	if *numCores > 0 {
		cfg.Analysis.NumCores = *numCores
	}
	if *useOtsu {
		cfg.Otsu.Enabled = true
	}
	if *syntheticKind != "" {
		cfg.Synthetic.Kind = *syntheticKind
	}
	if *exportSlices {
		cfg.Output.ExportSlices = true
	}
	if *debug {
		cfg.Output.LogLevel = "debug"
	}

	logger.Init(cfg.Output.LogLevel)

	params, err := pipeline.ParamsFromConfig(cfg, *input)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Floats64("scales", params.Scales).
		Int("cores", params.NumCores).
		Bool("otsu", params.Otsu).
		Msg("Starting multi-scale shape analysis")

	analyzer := pipeline.NewAnalyzer(params)
	if err := analyzer.Process(ctx); err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	summary := analyzer.Summary()
	event := log.Info().
		Ints("shape", summary.Shape).
		Float64("vessel_mean", summary.VesselMean).
		Float64("vessel_max", summary.VesselMax).
		Float64("clump_mean", summary.ClumpMean).
		Float64("clump_max", summary.ClumpMax).
		Str("metadata", summary.Sidecar).
		Dur("elapsed", summary.Elapsed)
	if summary.Threshold != nil {
		event = event.Int64("otsu_k", summary.Threshold.K).Bool("otsu_degenerate", summary.Threshold.Degenerate)
	}
	event.Msg("Analysis completed successfully")

	for _, share := range summary.Shares {
		log.Info().
			Float64("sigma", share.Sigma).
			Float64("vessel_share", share.Vessel).
			Float64("clump_share", share.Clump).
			Msg("Voxels won by scale")
	}
}
