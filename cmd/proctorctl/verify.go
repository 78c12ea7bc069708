package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/proctor/internal/refstore"
	"github.com/saturnino-fabrica-de-software/proctor/internal/service"
)

func newVerificationService(e *env) (*service.VerificationService, error) {
	store, err := refstore.NewFileStore(e.cfg.ReferenceImagesDir)
	if err != nil {
		return nil, fmt.Errorf("open reference store: %w", err)
	}
	return service.NewVerificationService(store, e.backends.Locator, e.backends.Embedder,
		service.WithVerificationThreshold(e.cfg.VerificationThreshold),
		service.WithVerificationLogger(e.logger),
	), nil
}

func newVerifyCmd() *cobra.Command {
	var student string

	cmd := &cobra.Command{
		Use:               "verify <image>",
		Short:             "Check a live photo against a student's stored references",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: loadEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := refstore.ValidateKey(student); err != nil {
				return fmt.Errorf("--student: %w", err)
			}

			verifier, err := newVerificationService(current)
			if err != nil {
				return err
			}

			live, err := readImage(args[0])
			if err != nil {
				return err
			}

			result, err := verifier.VerifyFace(cmd.Context(), student, live.img)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&student, "student", "s", "", "Student ID whose references are used")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}
