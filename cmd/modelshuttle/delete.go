package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/spf13/cobra"
)

func deleteCmd() *cobra.Command {
	var force bool

	c := &cobra.Command{
		Use:     "delete NAME TAG",
		Aliases: []string{"rm"},
		Short:   "Delete a model and the blobs no other model uses",
		Args:    cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := model.ParseIdentity(args[0] + ":" + args[1])
			if err != nil {
				return err
			}

			confirmed := force || confirm(os.Stdin, fmt.Sprintf("Delete %s? [y/N] ", id))
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}

			engine, release := setup(newLogger())
			defer release()

			ctx, stop := interruptible()
			defer stop()

			res, err := engine.Delete(ctx, transfer.DeleteRequest{
				Identity:  id,
				Confirmed: confirmed,
			})
			if err != nil {
				return err
			}

			fmt.Println(res.Summary())
			return nil
		},
	}
	c.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	return c
}

func confirm(r io.Reader, question string) bool {
	fmt.Print(question)

	answer, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Println()
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
