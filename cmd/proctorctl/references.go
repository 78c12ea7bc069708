package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/refstore"
)

type referenceFile struct {
	Filename  string    `json:"filename"`
	View      string    `json:"view_type"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

type referencesReport struct {
	StudentID string                    `json:"student_id"`
	Images    []referenceFile           `json:"images"`
	Status    domain.VerificationStatus `json:"status"`
}

func newReferencesCmd() *cobra.Command {
	var student string

	cmd := &cobra.Command{
		Use:               "references",
		Short:             "Load a student's reference photos and report which views are usable",
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadEnv,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := refstore.ValidateKey(student); err != nil {
				return fmt.Errorf("--student: %w", err)
			}

			store, err := refstore.NewFileStore(current.cfg.ReferenceImagesDir)
			if err != nil {
				return fmt.Errorf("open reference store: %w", err)
			}
			refs, err := store.List(cmd.Context(), student)
			if err != nil {
				return err
			}

			verifier, err := newVerificationService(current)
			if err != nil {
				return err
			}
			if _, err := verifier.LoadReferenceImages(cmd.Context(), student); err != nil {
				return err
			}

			report := referencesReport{
				StudentID: student,
				Images:    make([]referenceFile, 0, len(refs)),
				Status:    verifier.GetVerificationStatus(student),
			}
			for _, ref := range refs {
				report.Images = append(report.Images, referenceFile{
					Filename:  ref.Filename,
					View:      ref.View,
					Timestamp: ref.Timestamp,
					Size:      ref.Size,
				})
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&student, "student", "s", "", "Student ID")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}
