package main

import (
	"fmt"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/mdouchement/modelshuttle/internal/model"
)

// track renders the progress events until ch is closed, then closes the returned channel.
func track(ch <-chan model.Progress) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		var bar *pb.ProgressBar
		finish := func() {
			if bar != nil {
				bar.Finish()
				bar = nil
			}
		}
		defer finish()

		for p := range ch {
			if p.Digest == "" {
				finish()
				if cfg.Verbose && p.Stage != model.StageDone {
					fmt.Fprintf(os.Stderr, "%s...\n", p.Stage)
				}
				continue
			}

			if bar == nil {
				bar = pb.New64(p.BytesTotal).SetTemplate(pb.Full)
				bar.SetWriter(os.Stderr)
				bar.Set(pb.Bytes, true)
				bar.Set("prefix", p.Stage+" ")
				bar.Start()
			}
			bar.SetCurrent(p.BytesDone)
		}
	}()

	return done
}
