package main

import (
	"fmt"
	"time"

	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/spf13/cobra"
)

func gcCmd() *cobra.Command {
	var (
		dryRun  bool
		orphans bool
		maxAge  time.Duration
	)

	c := &cobra.Command{
		Use:   "gc",
		Short: "Remove what interrupted transfers left in the store",
		Long: `Removes stale temporary files, the blobs written by abandoned imports and empty manifest directories.
With --orphans, every blob no manifest references is removed too: do not use it while the model runtime is pulling a model.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			engine, release := setup(newLogger())
			defer release()

			ctx, stop := interruptible()
			defer stop()

			if maxAge == 0 {
				maxAge = cfg.Sweep.MaxAge.Duration
			}

			report, err := engine.Collect(ctx, transfer.GCOptions{
				MaxAge:  maxAge,
				Orphans: orphans,
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Printf("%d abandoned transfers\n", report.Abandoned)
				fmt.Printf("%d orphan blobs\n", len(report.Orphans))
				for _, d := range report.Orphans {
					fmt.Println("  ", d)
				}
				return nil
			}

			fmt.Printf("Removed %d temporary files, %d blobs and %d empty directories (%d abandoned transfers)\n",
				report.TempFiles, report.Removed, report.Directories, report.Abandoned)
			return nil
		},
	}
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Report without removing anything")
	c.Flags().BoolVar(&orphans, "orphans", false, "Also remove the blobs no model references")
	c.Flags().DurationVar(&maxAge, "max-age", 0, "Age after which temporary files and pending imports are abandoned (default from configuration)")
	return c
}
