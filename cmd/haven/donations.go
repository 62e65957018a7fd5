package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haven-org/haven/internal/donations"
	"github.com/haven-org/haven/internal/settings"
)

func newDonationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "donations",
		Short: "Donation widget settings",
	}

	cmd.AddCommand(newDonationsShowCmd())
	return cmd
}

func newDonationsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective donation settings",
		Long:  "Prints the donation settings exactly as GET /api/settings/donations would serve them, defaults included, then lists which keys are stored overrides.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := openFromConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			s, err := donations.Load(cmd.Context(), b.store)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, s); err != nil {
				return err
			}

			var stored []string
			for _, key := range donations.Keys() {
				_, err := b.store.Get(cmd.Context(), key)
				switch {
				case err == nil:
					stored = append(stored, key)
				case !errors.Is(err, settings.ErrNotFound):
					return err
				}
			}
			out := cmd.OutOrStdout()
			if len(stored) == 0 {
				fmt.Fprintln(out, "\nAll values are defaults.")
			} else {
				fmt.Fprintf(out, "\nStored overrides: %s\n", strings.Join(stored, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	return cmd
}
