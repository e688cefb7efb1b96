package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"

	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/config"
	"github.com/mdouchement/modelshuttle/internal/database"
	"github.com/mdouchement/modelshuttle/internal/manifest"
	"github.com/mdouchement/modelshuttle/internal/storage"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg config.Config

	configPath string
	store      string
	dbpath     string
	verbose    bool
)

func main() {
	c := &cobra.Command{
		Use:           "modelshuttle",
		Short:         "Export, import and delete the models of a local Ollama store",
		Version:       fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:          cobra.ExactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) (err error) {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			if c.Flags().Changed("store") {
				cfg.Store = store
			}
			if c.Flags().Changed("database") {
				cfg.Database = dbpath
			}
			if verbose {
				cfg.Verbose = true
			}
			return nil
		},
	}
	c.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default $"+config.EnvConfig+" or ~/.modelshuttle.toml)")
	c.PersistentFlags().StringVarP(&store, "store", "s", "", "Model store root (default $"+config.EnvRuntime+" or ~/.ollama/models)")
	c.PersistentFlags().StringVar(&dbpath, "database", "", "Transfer journal, empty to disable it (default ~/.modelshuttle.db)")
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for modelshuttle",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)
	c.AddCommand(listCmd())
	c.AddCommand(exportCmd())
	c.AddCommand(importCmd())
	c.AddCommand(deleteCmd())
	c.AddCommand(gcCmd())
	c.AddCommand(historyCmd())
	c.AddCommand(serverCmd())

	if err := c.Execute(); err != nil {
		log.SetFlags(0)
		if verbose {
			log.Fatalf("Error: %+v", err)
		}
		log.Fatalf("Error: %s", err)
	}
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the transfer journal",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			return database.StormInit(cfg.Database)
		},
	}

	//

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the transfer journal",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			return database.StormReIndex(cfg.Database)
		},
	}
)

func newLogger() logger.Logger {
	return newLeveledLogger(logrus.WarnLevel)
}

// newLeveledLogger returns a logger at the given level, or debug when verbose.
func newLeveledLogger(level logrus.Level) logger.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logger.LogrusTextFormatter{
		DisableColors:   false,
		ForceColors:     true,
		ForceFormatting: true,
		PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	log.SetLevel(level)
	if cfg.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return logger.WrapLogrus(log)
}

// setup returns the engine of the configured store and a func releasing its resources.
// The journal is optional: when it cannot be opened (e.g. held by a running server) the engine runs without it.
func setup(l logger.Logger) (*transfer.Engine, func()) {
	ctrl := transfer.Controller{
		Logger:    l,
		Manifests: manifest.NewStore(cfg.Store),
		Blobs:     storage.NewFileSystem(cfg.Store),
	}

	release := func() {}
	if cfg.Database != "" {
		db, err := database.StormOpen(cfg.Database)
		if err != nil {
			l.Infof("journal disabled: %s", err)
		} else {
			ctrl.Database = db
			release = func() { db.Close() }
		}
	}

	l.Debugf("store: %s", cfg.Store)
	return transfer.New(ctrl), release
}

// interruptible returns a context canceled on SIGINT or SIGTERM so operations clean up their temporary files.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
