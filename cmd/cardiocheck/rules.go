package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Skufu/cardiorisk/internal/override"
)

var rulesFile string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the override rules that would be applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rulesFile
		if path == "" {
			path = cfg.Rules.File
		}
		engine, err := override.LoadRules(path)
		if err != nil {
			return err
		}
		return printRules(cmd.OutOrStdout(), engine.Rules())
	},
}

func init() {
	rulesCmd.Flags().StringVar(&rulesFile, "file", "", "YAML rules file (built-in rules when empty)")
	rootCmd.AddCommand(rulesCmd)
}

func printRules(w io.Writer, rules []override.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONDITION\tSEVERITY\tMODEL AT MOST\tREASON")
	for _, r := range rules {
		atMost := "-"
		if r.ModelAtMost != "" {
			atMost = string(r.ModelAtMost)
		}
		fmt.Fprintf(tw, "%s\t%s %s %g\t%s\t%s\t%s\n", r.ID, r.Field, r.Op, r.Threshold, r.Severity, atMost, r.Reason)
	}
	return tw.Flush()
}
