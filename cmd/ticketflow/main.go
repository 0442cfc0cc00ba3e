// Command ticketflow runs the workflow engine: the serve command hosts
// the scheduler and HTTP surface, and the enqueue, resume, and health
// commands are operator tools against the same database and config.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ticketflow",
		Short:         "Checkpointed ticket workflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newEnqueueCmd(&configPath),
		newResumeCmd(&configPath),
		newHealthCmd(&configPath),
	)
	return root
}

func loadConfig(path string) (config.File, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openDB(cfg config.File) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Storage.Path, err)
	}
	return db, nil
}
