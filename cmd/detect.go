package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/detect"
	"github.com/GuilleTCast/fittingo/internal/specio"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect candidate peaks without fitting",
	Long: `Estimates the baseline and noise floor, then lists the local maxima
that would seed a fit. Useful for tuning detection flags before running one.`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&fitDataPath, "data", "", "Spectrum file path (required)")
	detectCmd.Flags().IntVar(&fitChannel, "channel", 0, "Data channel for multi-column files")
	detectCmd.Flags().StringVar(&fitShape, "shape", "gaussian", "Line shape: gaussian, lorentzian, voigt")
	detectCmd.Flags().IntVar(&fitDegree, "degree", 0, "Baseline polynomial degree")
	detectCmd.Flags().IntVar(&fitPolarity, "polarity", 1, "Band polarity: 1 or -1")
	detectCmd.Flags().Float64Var(&fitNoiseMult, "noise-mult", 5, "Noise multiplier for the detection threshold")
	detectCmd.Flags().Float64Var(&fitMinProm, "min-prominence", 0, "Minimum prominence for peaks (absorbance units)")
	detectCmd.Flags().Float64Var(&fitMinSep, "min-separation", 4, "Minimum separation between peaks (wavenumbers)")
	detectCmd.Flags().Float64Var(&fitDefaultWidth, "default-width", 5, "Fallback seed width (wavenumbers)")
	detectCmd.Flags().StringVar(&fitNoiseEst, "noise-estimator", "mad", "Noise floor estimator: mad, fft")
	detectCmd.Flags().Float64Var(&fitVoigtMix, "voigt-mix", 0.5, "Seed mixing fraction for voigt peaks")

	detectCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
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

	_, detCfg, err := buildFitConfigs()
	if err != nil {
		return err
	}

	xs := spec.Wavenumbers
	ys := spec.Absorbance()

	poly, err := baseline.Estimate(xs, ys, fitDegree, float64(fitPolarity))
	if err != nil {
		return err
	}
	corrected := make([]float64, len(ys))
	for i := range ys {
		corrected[i] = ys[i] - poly.Eval(xs[i])
	}

	seeds, err := detect.Peaks(xs, corrected, detCfg)
	if err != nil {
		return err
	}

	slog.Info("Detection complete", "path", fitDataPath, "peaks", len(seeds))

	if len(seeds) == 0 {
		fmt.Println("No peaks detected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCENTER\tWIDTH\tHEIGHT")
	for i, s := range seeds {
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.4g\n", i+1, s.Center, s.Width, s.Amplitude)
	}
	w.Flush()

	return nil
}
