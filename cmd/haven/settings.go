package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/haven-org/haven/internal/models"
	"github.com/haven-org/haven/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and edit stored settings",
	}

	cmd.AddCommand(newSettingsGetCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsListCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := openFromConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			rec, err := b.store.Get(cmd.Context(), args[0])
			if errors.Is(err, settings.ErrNotFound) {
				return fmt.Errorf("setting %q not found", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	return cmd
}

func newSettingsSetCmd() *cobra.Command {
	var (
		configPath  string
		description string
		category    string
	)

	cmd := &cobra.Command{
		Use:   "set <key> <json-value>",
		Short: "Create or replace a setting",
		Long: `Creates or replaces a setting. The value must be a JSON document, e.g.

  haven settings set site_title '"Haven"'
  haven settings set donation_goal 50000 --category donations`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], []byte(args[1])
			if !json.Valid(value) {
				return fmt.Errorf("value for %s is not valid JSON: %s", key, args[1])
			}

			_, b, err := openFromConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			meta := settings.Meta{Category: category}
			if cmd.Flags().Changed("description") {
				meta.Description = &description
			}
			rec, err := b.store.Upsert(cmd.Context(), key, value, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (category %s)\n", rec.Key, rec.Category)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	cmd.Flags().StringVarP(&description, "description", "d", "", "human-readable description")
	cmd.Flags().StringVar(&category, "category", models.DefaultCategory, "setting category")
	return cmd
}

func newSettingsListCmd() *cobra.Command {
	var (
		configPath string
		category   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, b, err := openFromConfig(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			list, err := b.store.List(cmd.Context(), category)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No settings stored.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCATEGORY\tVALUE\tUPDATED")
			for _, s := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Key, s.Category, truncate(s.Value, 48), s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "haven.yaml", "path to Haven config file")
	cmd.Flags().StringVar(&category, "category", "", "only list settings in this category")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
