// stakepoold maintains a stake pool ledger: it creates pools, runs the
// per-epoch updater against a cluster RPC oracle, and serves the pool's
// read-only JSON-RPC and metrics endpoints.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var log = log15.New("module", "stakepoold")

// Commonly used command line flags.
var (
	dataDirFlag = &cli.StringFlag{
		Name:  "data-dir",
		Value: "./stakepool-data",
		Usage: "directory for the pool store and token ledger",
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Value: "stakepool.yaml",
		Usage: "daemon configuration file (YAML)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Value: "info",
		Usage: "log level: debug, info, warn, error, crit",
	}
	epochFlag = &cli.Uint64Flag{
		Name:  "epoch",
		Usage: "initial epoch of the pool (0 queries the oracle)",
	}
	pollIntervalFlag = &cli.DurationFlag{
		Name:  "poll-interval",
		Value: 30 * time.Second,
		Usage: "how often to poll the oracle for a new epoch",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Value: 20,
		Usage: "number of journal entries to print (0 prints all)",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "output JSON instead of human-readable format",
	}
	outFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "snapshot file to write",
		Required: true,
	}
	inFlag = &cli.StringFlag{
		Name:     "in",
		Usage:    "snapshot file to read",
		Required: true,
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "stakepoold",
		Usage:   "stake pool accounting and rebalancing daemon",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Flags: []cli.Flag{
			dataDirFlag,
			configFlag,
			logLevelFlag,
		},
		Before: initLogger,
		Commands: []*cli.Command{
			commandInit,
			commandRun,
			commandInfo,
			commandJournal,
			commandExport,
			commandImport,
		},
	}
}

func initLogger(ctx *cli.Context) error {
	lvl, err := log15.LvlFromString(ctx.String(logLevelFlag.Name))
	if err != nil {
		return err
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(os.Stderr, log15.TerminalFormat())))
	return nil
}

func storePath(ctx *cli.Context) string {
	return filepath.Join(ctx.String(dataDirFlag.Name), "pool.db")
}

func tokensPath(ctx *cli.Context) string {
	return filepath.Join(ctx.String(dataDirFlag.Name), "tokens")
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
