package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

func newGenKeyCmd() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a value for API_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := domain.GenerateAPIKey(environment)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "API_KEY=%s\n", key)
			return err
		},
	}

	cmd.Flags().StringVarP(&environment, "env", "e", domain.EnvLive, "Key environment: live or test")
	return cmd
}
