package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Validate and print the active question schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			fields, err := loadSchema(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tKEY\tLABEL\tSKIPPABLE\tVALIDATOR")
			for i, f := range fields.Fields() {
				validator := f.Validate
				if validator == "" {
					validator = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", i+1, f.Key, f.DisplayLabel(), f.Skippable, validator)
			}
			return w.Flush()
		},
	}
}
