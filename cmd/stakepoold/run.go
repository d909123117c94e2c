package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fortiblox/x1-stakepool/pkg/dashboard"
	"github.com/fortiblox/x1-stakepool/pkg/metrics"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/rpc"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
)

var commandRun = &cli.Command{
	Name:  "run",
	Usage: "run the epoch updater and serve JSON-RPC and metrics",
	Flags: []cli.Flag{
		pollIntervalFlag,
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx.String(configFlag.Name))
		if err != nil {
			return err
		}
		engineCfg, err := cfg.engineConfig()
		if err != nil {
			return err
		}
		if err := cfg.RPC.Validate(); err != nil {
			return err
		}
		orc, err := oracle.NewRPC(cfg.Oracle)
		if err != nil {
			return errors.Wrap(err, "create oracle")
		}

		store, err := openStore(ctx, cfg.Store, false)
		if err != nil {
			return err
		}
		defer store.Close()
		pool, err := store.Load()
		if err != nil {
			return err
		}
		ledger, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if ledger.Supply() != pool.TotalPoolTokens {
			return errors.Errorf("token supply %d does not match pool supply %d", ledger.Supply(), pool.TotalPoolTokens)
		}

		recorder := metrics.NewRecorder(true)
		recorder.ObservePool(pool)
		engine, err := stakepool.NewEngine(pool, orc, ledger,
			stakepool.WithConfig(engineCfg),
			stakepool.WithStore(store),
			stakepool.WithRecorder(recorder),
		)
		if err != nil {
			return err
		}

		server := rpc.New(cfg.RPC, rpc.Backend{
			Pool:     engine,
			Journal:  store,
			Epochs:   orc,
			Balances: ledger,
		})
		server.Handle("/metrics", recorder.Handler())

		runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		orc.Start(runCtx)
		defer orc.Close()

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start(runCtx) }()

		if cfg.Dashboard.Enabled {
			dash, err := dashboard.New(cfg.Dashboard, engine, store, orc)
			if err != nil {
				return errors.Wrap(err, "create dashboard")
			}
			go func() {
				if err := dash.Start(runCtx); err != nil {
					log.Error("Dashboard stopped", "err", err)
				}
			}()
			log.Info("Dashboard listening", "addr", dash.Address())
		}

		log.Info("Starting stake pool daemon", "version", Version, "pool", pool.Address,
			"epoch", pool.LastUpdateEpoch, "poolVersion", pool.Version)

		u := &updater{
			engine: engine,
			epochs: orc,
			pruner: store,
			health: server,
			log:    log15.New("module", "updater"),
		}
		u.loop(runCtx, ctx.Duration(pollIntervalFlag.Name))

		if err := <-errCh; err != nil {
			return errors.Wrap(err, "rpc server")
		}
		log.Info("Shutdown complete")
		return nil
	},
}

// pruner trims the journal after an update pass.
type pruner interface {
	Prune() (int, error)
}

// healthSetter receives the updater's view of node health.
type healthSetter interface {
	SetHealthy(bool)
}

// updater runs the epoch updater whenever the oracle reports a new epoch.
type updater struct {
	engine *stakepool.Engine
	epochs rpc.EpochReader
	pruner pruner
	health healthSetter
	log    log15.Logger
}

// loop polls until ctx is cancelled.
func (u *updater) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := u.poll(ctx); err != nil && ctx.Err() == nil {
			u.log.Warn("Epoch update failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one updater pass if the epoch has moved. It returns nil
// without error when no pass was needed.
func (u *updater) poll(ctx context.Context) (*stakepool.UpdateResult, error) {
	epoch, err := u.epochs.CurrentEpoch(ctx)
	if err != nil {
		u.setHealthy(false)
		return nil, errors.Wrap(err, "query current epoch")
	}
	if epoch == u.engine.Pool().LastUpdateEpoch {
		u.setHealthy(true)
		return nil, nil
	}

	res, err := u.engine.Update(ctx, stakepool.UpdateOptions{})
	if err != nil {
		u.setHealthy(false)
		return nil, err
	}
	if res.NotRequired {
		u.setHealthy(true)
		return res, nil
	}
	u.log.Info("Epoch update complete", "epoch", res.Epoch, "merges", len(res.Merges),
		"rewards", res.Rewards, "feeTokens", res.FeeTokens, "version", res.Receipt.Version)

	if u.pruner != nil {
		if n, err := u.pruner.Prune(); err != nil {
			u.log.Warn("Journal prune failed", "err", err)
		} else if n > 0 {
			u.log.Debug("Pruned journal", "entries", n)
		}
	}
	u.setHealthy(true)
	return res, nil
}

func (u *updater) setHealthy(healthy bool) {
	if u.health != nil {
		u.health.SetHealthy(healthy)
	}
}
