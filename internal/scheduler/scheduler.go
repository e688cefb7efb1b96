package scheduler

import (
	"context"
	"time"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/robfig/cron/v3"
)

// A Controller is an Iversion Of Control pattern used to init the scheduler package.
type Controller struct {
	Logger        logger.Logger
	Engine        *transfer.Engine
	Specification string
	// MaxAge after which temporary files and pending imports are abandoned.
	MaxAge time.Duration
}

// Start lauches the scheduler asynchronously.
// The returned cron must be stopped on shutdown.
func Start(c Controller) (*cron.Cron, error) {
	cron := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	log := c.Logger.WithPrefix("[scheduler]")

	_, err := cron.AddFunc(c.Specification, func() {
		log := c.Logger.WithPrefix("[sweeper]")

		report, err := c.Engine.Collect(context.Background(), transfer.GCOptions{
			MaxAge: c.MaxAge,
		})
		if err != nil {
			log.Error(err)
			return
		}

		if report.TempFiles+report.Abandoned+report.Removed+report.Directories > 0 {
			log.Infof("Removed %d temp files, %d blobs of %d abandoned transfers and %d empty directories",
				report.TempFiles, report.Removed, report.Abandoned, report.Directories)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Sweeper task registred (%s)", c.Specification)

	cron.Start()
	log.Info("Scheduler is running")
	return cron, nil
}
