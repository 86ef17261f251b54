package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/detect"
	"github.com/GuilleTCast/fittingo/internal/engine"
	"github.com/GuilleTCast/fittingo/internal/opt"
	"github.com/GuilleTCast/fittingo/internal/peaks"
	"github.com/GuilleTCast/fittingo/internal/specio"
	"github.com/GuilleTCast/fittingo/internal/spectrum"
	"github.com/GuilleTCast/fittingo/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	fitDataPath     string
	fitChannel      int
	fitShape        string
	fitBaselineMode string
	fitDegree       int
	fitPolarity     int
	fitMaxIters     int
	fitNoiseMult    float64
	fitMinProm      float64
	fitMinSep       float64
	fitDefaultWidth float64
	fitNoiseEst     string
	fitVoigtMix     float64
	fitSeedSpecs    []string
	fitFromResult   string
	fitDataDir      string
	fitNoSave       bool

	fitGlobalSearch bool
	searchPeaks     int
	searchIters     int
	searchPop       int
	searchSeed      int64
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Deconvolve a spectrum into individual bands",
	Long: `Reads a two-column spectrum file, seeds peaks automatically (or from
--seed / --from-result) and refines them with a bounded Levenberg-Marquardt
fit. The result is printed as a table and saved under the data directory.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&fitDataPath, "data", "", "Spectrum file path (required)")
	fitCmd.Flags().IntVar(&fitChannel, "channel", 0, "Data channel for multi-column files")
	fitCmd.Flags().StringVar(&fitShape, "shape", "gaussian", "Line shape: gaussian, lorentzian, voigt")
	fitCmd.Flags().StringVar(&fitBaselineMode, "baseline", "pre-subtract", "Baseline handling: pre-subtract, joint")
	fitCmd.Flags().IntVar(&fitDegree, "degree", 0, "Baseline polynomial degree")
	fitCmd.Flags().IntVar(&fitPolarity, "polarity", 1, "Band polarity: 1 or -1")
	fitCmd.Flags().IntVar(&fitMaxIters, "max-iters", 200, "Max fit iterations")
	fitCmd.Flags().Float64Var(&fitNoiseMult, "noise-mult", 5, "Noise multiplier for the detection threshold")
	fitCmd.Flags().Float64Var(&fitMinProm, "min-prominence", 0, "Minimum prominence for detected peaks (absorbance units)")
	fitCmd.Flags().Float64Var(&fitMinSep, "min-separation", 4, "Minimum separation between detected peaks (wavenumbers)")
	fitCmd.Flags().Float64Var(&fitDefaultWidth, "default-width", 5, "Fallback seed width (wavenumbers)")
	fitCmd.Flags().StringVar(&fitNoiseEst, "noise-estimator", "mad", "Noise floor estimator: mad, fft")
	fitCmd.Flags().Float64Var(&fitVoigtMix, "voigt-mix", 0.5, "Seed mixing fraction for voigt peaks")
	fitCmd.Flags().StringArrayVar(&fitSeedSpecs, "seed", nil, "Manual seed center:width:amplitude[:mix], repeatable; disables detection")
	fitCmd.Flags().StringVar(&fitFromResult, "from-result", "", "Seed from a saved result by job ID")
	fitCmd.Flags().StringVar(&fitDataDir, "data-dir", "./data", "Base directory for result storage")
	fitCmd.Flags().BoolVar(&fitNoSave, "no-save", false, "Do not persist the result")

	fitCmd.Flags().BoolVar(&fitGlobalSearch, "global-search", false, "Refine seeds with a global mayfly search before fitting")
	fitCmd.Flags().IntVar(&searchPeaks, "search-peaks", 3, "Peak count for the global search when no seeds are given")
	fitCmd.Flags().IntVar(&searchIters, "search-iters", 100, "Global search iterations")
	fitCmd.Flags().IntVar(&searchPop, "search-pop", 30, "Global search population size")
	fitCmd.Flags().Int64Var(&searchSeed, "search-seed", 42, "Global search random seed")

	fitCmd.MarkFlagRequired("data")

	viper.BindPFlag("data-dir", fitCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("shape", fitCmd.Flags().Lookup("shape"))
	viper.BindPFlag("baseline", fitCmd.Flags().Lookup("baseline"))

	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("shape") {
		fitShape = viper.GetString("shape")
	}
	if !cmd.Flags().Changed("baseline") {
		fitBaselineMode = viper.GetString("baseline")
	}
	if !cmd.Flags().Changed("data-dir") {
		fitDataDir = viper.GetString("data-dir")
	}

	spec, err := specio.ReadFile(fitDataPath)
	if err != nil {
		return fmt.Errorf("failed to read spectrum: %w", err)
	}
	if fitChannel > 0 {
		spec, err = spec.Channel(fitChannel)
		if err != nil {
			return err
		}
	}

	slog.Info("Loaded spectrum", "path", fitDataPath, "samples", spec.Len())

	engCfg, detCfg, err := buildFitConfigs()
	if err != nil {
		return err
	}

	manual, err := collectSeeds(detCfg)
	if err != nil {
		return err
	}

	if fitGlobalSearch {
		manual, err = globalSeedSearch(spec, manual, engCfg)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	result, err := engine.Deconvolve(ctx, spec, engCfg, detCfg, manual)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	printResult(result, elapsed)

	if fitNoSave {
		return nil
	}

	jobID := uuid.New().String()
	if err := saveResult(jobID, result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	fmt.Printf("\nSaved as %s\n", jobID)

	return nil
}

func buildFitConfigs() (engine.Config, detect.Config, error) {
	shape, err := peaks.ParseShape(fitShape)
	if err != nil {
		return engine.Config{}, detect.Config{}, err
	}
	mode, err := baseline.ParseMode(fitBaselineMode)
	if err != nil {
		return engine.Config{}, detect.Config{}, err
	}
	estimator, err := detect.ParseNoiseEstimator(fitNoiseEst)
	if err != nil {
		return engine.Config{}, detect.Config{}, err
	}

	engCfg := engine.DefaultConfig()
	engCfg.MaxIterations = fitMaxIters
	engCfg.Polarity = float64(fitPolarity)
	engCfg.BaselineMode = mode
	engCfg.BaselineDegree = fitDegree

	detCfg := detect.DefaultConfig()
	detCfg.Shape = shape
	detCfg.Polarity = float64(fitPolarity)
	detCfg.NoiseMult = fitNoiseMult
	detCfg.MinProminence = fitMinProm
	detCfg.MinSeparation = fitMinSep
	detCfg.DefaultWidth = fitDefaultWidth
	detCfg.NoiseEstimator = estimator
	detCfg.VoigtMix = fitVoigtMix
	if err := detCfg.Validate(); err != nil {
		return engine.Config{}, detect.Config{}, err
	}

	return engCfg, detCfg, nil
}

// collectSeeds gathers manual seeds from --seed specs or --from-result.
// An empty return means automatic detection.
func collectSeeds(detCfg detect.Config) ([]peaks.PeakParams, error) {
	if len(fitSeedSpecs) > 0 && fitFromResult != "" {
		return nil, fmt.Errorf("--seed and --from-result are mutually exclusive")
	}

	if len(fitSeedSpecs) > 0 {
		seeds := make([]peaks.PeakParams, len(fitSeedSpecs))
		for i, spec := range fitSeedSpecs {
			p, err := parseSeedSpec(spec, detCfg.Shape)
			if err != nil {
				return nil, fmt.Errorf("invalid --seed %q: %w", spec, err)
			}
			seeds[i] = p
		}
		return seeds, nil
	}

	if fitFromResult != "" {
		resultStore, err := store.NewFSStore(fitDataDir)
		if err != nil {
			return nil, err
		}
		record, err := resultStore.LoadResult(fitFromResult)
		if err != nil {
			return nil, err
		}
		if err := record.Validate(); err != nil {
			return nil, err
		}
		if err := record.IsCompatible(currentStoreConfig()); err != nil {
			return nil, err
		}

		seeds := make([]peaks.PeakParams, len(record.Peaks))
		for i, p := range record.Peaks {
			shape, err := peaks.ParseShape(p.Shape)
			if err != nil {
				return nil, err
			}
			seeds[i] = peaks.PeakParams{
				Shape:     shape,
				Center:    p.Center,
				Width:     p.Width,
				Amplitude: p.Amplitude,
				Mix:       p.Mix,
			}
		}
		slog.Info("Seeding from saved result", "job_id", fitFromResult, "peaks", len(seeds))
		return seeds, nil
	}

	return nil, nil
}

// parseSeedSpec parses "center:width:amplitude" with an optional ":mix".
func parseSeedSpec(spec string, shape peaks.Shape) (peaks.PeakParams, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return peaks.PeakParams{}, fmt.Errorf("want center:width:amplitude[:mix]")
	}

	vals := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return peaks.PeakParams{}, fmt.Errorf("component %d: %w", i, err)
		}
		vals[i] = v
	}

	p := peaks.PeakParams{
		Shape:     shape,
		Center:    vals[0],
		Width:     vals[1],
		Amplitude: vals[2],
	}
	if len(vals) == 4 {
		p.Mix = vals[3]
	} else if shape == peaks.Voigt {
		p.Mix = fitVoigtMix
	}
	return p, nil
}

// globalSeedSearch refines the seed positions with the mayfly optimizer
// before the local fit. Without explicit seeds it spreads search-peaks
// placeholder bands evenly over the axis.
func globalSeedSearch(spec *spectrum.Spectrum, manual []peaks.PeakParams, engCfg engine.Config) ([]peaks.PeakParams, error) {
	seeds := manual
	if len(seeds) == 0 {
		if searchPeaks <= 0 {
			return nil, fmt.Errorf("--search-peaks must be positive")
		}
		lo, hi := spec.Range()
		span := hi - lo
		shape, err := peaks.ParseShape(fitShape)
		if err != nil {
			return nil, err
		}
		seeds = make([]peaks.PeakParams, searchPeaks)
		for i := range seeds {
			seeds[i] = peaks.PeakParams{
				Shape:     shape,
				Center:    lo + span*(float64(i)+0.5)/float64(searchPeaks),
				Width:     fitDefaultWidth,
				Amplitude: float64(fitPolarity),
				Mix:       fitVoigtMix,
			}
		}
	}

	optimizer := opt.NewMayfly(searchIters, searchPop, searchSeed)
	refined, err := engine.SearchSeeds(spec, engine.FitModel{Peaks: seeds}, engCfg, optimizer)
	if err != nil {
		return nil, fmt.Errorf("global seed search failed: %w", err)
	}
	return refined.Peaks, nil
}

func printResult(result *engine.FitResult, elapsed time.Duration) {
	fmt.Printf("State: %s (converged: %v, %d iterations, %s)\n",
		result.State, result.Converged, result.Iterations, elapsed.Round(time.Millisecond))
	fmt.Printf("Cost: %.6g  Reduced chi-square: %.6g  R-squared: %.6f\n\n",
		result.Cost, result.ReducedChiSquare, result.RSquared)

	if len(result.Peaks) == 0 {
		fmt.Println("No peaks found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSHAPE\tCENTER\tFWHM\tAMPLITUDE\tAREA\tMIX")
	for i, p := range result.Peaks {
		mix := "-"
		if p.Shape == peaks.Voigt {
			mix = fmt.Sprintf("%.3f", p.Mix)
		}
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.4g\t%.4g\t%s\n",
			i+1, p.Shape, p.Center, p.FWHM, p.Amplitude, p.Area, mix)
	}
	w.Flush()

	if len(result.Model.Baseline.Coeffs) > 0 {
		fmt.Printf("\nBaseline coefficients: %v\n", result.Model.Baseline.Coeffs)
	}
}

func currentStoreConfig() store.FitConfig {
	return store.FitConfig{
		DataPath:      fitDataPath,
		Channel:       fitChannel,
		Shape:         fitShape,
		BaselineMode:  fitBaselineMode,
		Degree:        fitDegree,
		MaxIterations: fitMaxIters,
		NoiseMult:     fitNoiseMult,
		Polarity:      fitPolarity,
	}
}

func saveResult(jobID string, result *engine.FitResult) error {
	resultStore, err := store.NewFSStore(fitDataDir)
	if err != nil {
		return err
	}

	records := make([]store.PeakRecord, len(result.Peaks))
	for i, p := range result.Peaks {
		records[i] = store.PeakRecord{
			Shape:     p.Shape.String(),
			Center:    p.Center,
			Width:     p.Width,
			Amplitude: p.Amplitude,
			Mix:       p.Mix,
			FWHM:      p.FWHM,
			Area:      p.Area,
		}
	}

	record := store.NewFitRecord(
		jobID,
		records,
		result.Model.Baseline.Coeffs,
		result.Cost,
		string(result.State),
		result.Converged,
		result.Iterations,
		currentStoreConfig(),
	)
	record.ReducedChiSquare = result.ReducedChiSquare
	record.RSquared = result.RSquared

	return resultStore.SaveResult(jobID, record)
}
