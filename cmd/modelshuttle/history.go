package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	c := &cobra.Command{
		Use:   "history",
		Short: "Show the transfer journal",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			engine, release := setup(newLogger())
			defer release()

			transfers, err := engine.Transfers(limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(transfers)
			}

			if len(transfers) == 0 {
				fmt.Println("No transfer")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "When", "Operation", "Model", "State", "Size", "Error"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)

			for _, t := range transfers {
				when := ""
				if t.CreatedAt != nil {
					when = humanize.Time(*t.CreatedAt)
				}
				table.Append([]string{
					abbrev(t.ID),
					when,
					t.Operation,
					t.Model,
					t.State,
					humanize.IBytes(uint64(t.Bytes)),
					t.Error,
				})
			}
			table.Render()
			return nil
		},
	}
	c.Flags().IntVarP(&limit, "limit", "l", 20, "Number of transfers, 0 for all")
	c.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return c
}
