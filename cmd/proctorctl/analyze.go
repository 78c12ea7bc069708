package main

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/proctor"
)

type imageFile struct {
	path string
	img  image.Image
}

type analyzeResult struct {
	File       string          `json:"file"`
	Violations *domain.Verdict `json:"violations,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:               "analyze <image>...",
		Short:             "Print the violation flags raised by each frame",
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: loadEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			thresholds := proctor.DefaultThresholds()
			thresholds.FaceConfidence = current.cfg.FaceConfidence
			thresholds.DeviceConfidence = current.cfg.DeviceConfidence
			pipeline := proctor.NewPipeline(current.backends.Detector, current.backends.Landmarks,
				proctor.WithThresholds(thresholds),
				proctor.WithLogger(current.logger),
			)

			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.NewOptions(len(args),
					progressbar.OptionSetDescription("Analyzing"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
				)
			}

			// one JSON object per line
			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, path := range args {
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				result := analyzeResult{File: path}
				frame, err := readImage(path)
				if err == nil {
					var verdict domain.Verdict
					verdict, err = pipeline.DetectViolations(cmd.Context(), frame.img)
					if err == nil {
						result.Violations = &verdict
					}
				}
				if err != nil {
					result.Error = err.Error()
					failed++
				}

				if bar != nil {
					_ = bar.Add(1)
				}
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d frames could not be analyzed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}
