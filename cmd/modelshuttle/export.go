package main

import (
	"fmt"

	"github.com/mdouchement/modelshuttle/internal/archive"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		force       bool
		verify      bool
		compression string
	)

	c := &cobra.Command{
		Use:   "export NAME TAG OUTPUT",
		Short: "Export a model to an archive (.tar.gz, .tar.zst or .tar)",
		Example: `  modelshuttle export mistral 7b mistral-7b.tar.gz
  modelshuttle export team/coder q4 coder.tar.zst --verify`,
		Args: cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := model.ParseIdentity(args[0] + ":" + args[1])
			if err != nil {
				return err
			}
			comp, err := archive.ParseCompression(compression)
			if err != nil {
				return err
			}

			engine, release := setup(newLogger())
			defer release()

			ctx, stop := interruptible()
			defer stop()

			ch := make(chan model.Progress, 64)
			done := track(ch)
			res, err := engine.Export(ctx, transfer.ExportRequest{
				Identity:    id,
				Destination: args[2],
				Overwrite:   force,
				Compression: comp,
				Verify:      verify,
				Progress:    ch,
			})
			close(ch)
			<-done
			if err != nil {
				return err
			}

			fmt.Println(res.Summary())
			return nil
		},
	}
	c.Flags().BoolVarP(&force, "force", "f", false, "Overwrite the output archive")
	c.Flags().BoolVar(&verify, "verify", false, "Verify every blob before packing")
	c.Flags().StringVar(&compression, "compression", "auto", "Archive compression: auto, gzip, zstd or none")
	return c
}
