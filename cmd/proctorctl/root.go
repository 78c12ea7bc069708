package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/config"
	"github.com/saturnino-fabrica-de-software/proctor/internal/face"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
)

// Version is the CLI version
const Version = "0.1.0"

// env holds what every model-backed subcommand needs
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	backends *face.Backends
}

var (
	current *env
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "proctorctl",
	Short:         "Run the proctoring models against local images",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadEnv builds the backends from the environment; used as PersistentPreRunE
// by the commands that run models
func loadEnv(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOffline()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	backends, err := face.NewBackends(cmd.Context(), cfg, audit.NewSlogLogger(logger))
	if err != nil {
		return fmt.Errorf("create model backends: %w", err)
	}

	current = &env{cfg: cfg, logger: logger, backends: backends}
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log model calls to stderr")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newReferencesCmd())
	rootCmd.AddCommand(newGenKeyCmd())
}

func readImage(path string) (*imageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &imageFile{path: path, img: img}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
