package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a CSV or XLSX file without calling the prediction service",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, invalid, err := validateRows(validateFile, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if invalid > 0 {
			return fmt.Errorf("%d invalid rows", invalid)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "CSV or XLSX file with one patient per row")
	_ = validateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(validateCmd)
}

func validateRows(path string, w io.Writer) (valid, invalid int, err error) {
	rows, err := readRows(path)
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		if row.Err != nil {
			invalid++
			fmt.Fprintf(w, "%v\n", row.Err)
			continue
		}
		valid++
	}
	fmt.Fprintf(w, "%d rows: %d valid, %d invalid\n", len(rows), valid, invalid)
	return valid, invalid, nil
}
