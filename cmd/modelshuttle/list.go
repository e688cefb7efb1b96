package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var asJSON bool

	c := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the models of the store",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			engine, release := setup(newLogger())
			defer release()

			entries, err := engine.List()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Printf("No model in %s\n", cfg.Store)
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Size", "Layers", "ID", "Status"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)

			var total int64
			for _, entry := range entries {
				status := "ok"
				if entry.Missing > 0 {
					status = fmt.Sprintf("%d missing blobs", entry.Missing)
				}
				table.Append([]string{
					entry.Identity.String(),
					humanize.IBytes(uint64(entry.Size)),
					strconv.Itoa(entry.Layers),
					abbrev(entry.Digest.Encoded()),
					status,
				})
				total += entry.Size
			}
			table.Render()

			fmt.Printf("\n%d models, %s\n", len(entries), humanize.IBytes(uint64(total)))
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return c
}

func abbrev(encoded string) string {
	if len(encoded) > 12 {
		return encoded[:12]
	}
	return encoded
}
