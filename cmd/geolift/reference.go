package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTemplatesCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List experiment templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(e.templates.All())
			}
			for _, t := range e.templates.All() {
				fmt.Fprintf(out, "%s\t%s\n", t.ID, t.Name)
				fmt.Fprintf(out, "  metric %s, MDE %.1f%% (range %.1f-%.1f%%), %s effect, %d pre / %d post days\n",
					t.PrimaryMetric, t.DefaultMDE*100, t.MDERange[0]*100, t.MDERange[1]*100,
					t.DefaultShape, t.PrePeriodDays, t.PostPeriodDays)
				if len(t.DefaultConfounders) > 0 {
					names := make([]string, len(t.DefaultConfounders))
					for i, c := range t.DefaultConfounders {
						names[i] = string(c)
					}
					fmt.Fprintf(out, "  confounders: %s\n", strings.Join(names, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newMarketsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "List the market reference table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(e.table.All())
			}
			for _, m := range e.table.All() {
				fmt.Fprintf(out, "%-16s %-24s %v\n", m.ID, m.Name, m.Characteristics)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
