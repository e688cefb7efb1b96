package main

import (
	"fmt"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		force bool
		name  string
	)

	c := &cobra.Command{
		Use:   "import ARCHIVE",
		Short: "Import a model from an archive",
		Example: `  modelshuttle import mistral-7b.tar.gz
  modelshuttle import mistral-7b.tar.gz --name mistral-copy:7b`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			req := transfer.ImportRequest{
				Archive:   args[0],
				Overwrite: force,
			}
			if name != "" {
				id, err := model.ParseIdentity(name)
				if err != nil {
					return err
				}
				req.Override = &id
			}

			engine, release := setup(newLogger())
			defer release()

			ctx, stop := interruptible()
			defer stop()

			ch := make(chan model.Progress, 64)
			done := track(ch)
			req.Progress = ch
			res, err := engine.Import(ctx, req)
			close(ch)
			<-done
			if err != nil {
				return err
			}

			fmt.Println(res.Summary())
			return nil
		},
	}
	c.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing model")
	c.Flags().StringVarP(&name, "name", "n", "", "Import as name:tag instead of the archive's identity")
	return c
}
