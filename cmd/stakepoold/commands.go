package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fortiblox/x1-stakepool/internal/types"
	"github.com/fortiblox/x1-stakepool/pkg/oracle"
	"github.com/fortiblox/x1-stakepool/pkg/poolstore"
	"github.com/fortiblox/x1-stakepool/pkg/stakepool"
	"github.com/fortiblox/x1-stakepool/pkg/tokens"
)

var commandInit = &cli.Command{
	Name:  "init",
	Usage: "create a pool in the data directory",
	Description: `
Create an empty pool from the pool section of the configuration file. The
pool's ledger starts current at --epoch, or at the oracle's current epoch
when --epoch is not set.`,
	Flags: []cli.Flag{
		epochFlag,
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx.String(configFlag.Name))
		if err != nil {
			return err
		}

		epoch := ctx.Uint64(epochFlag.Name)
		if epoch == 0 {
			orc, err := oracle.NewRPC(cfg.Oracle)
			if err != nil {
				return errors.Wrap(err, "create oracle")
			}
			if epoch, err = orc.CurrentEpoch(ctx.Context); err != nil {
				return errors.Wrap(err, "query current epoch")
			}
		}

		pool, err := cfg.Pool.newPool(epoch)
		if err != nil {
			return errors.Wrap(err, "invalid pool configuration")
		}

		store, err := openStore(ctx, cfg.Store, false)
		if err != nil {
			return err
		}
		defer store.Close()
		ledger, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if ledger.Supply() != 0 {
			return errors.Errorf("token ledger at %s is not empty", tokensPath(ctx))
		}

		if err := store.Init(pool, stakepool.GenesisReceipt(pool, time.Now())); err != nil {
			return err
		}
		log.Info("Pool initialized", "address", pool.Address, "epoch", epoch, "digest", pool.Digest())
		return nil
	},
}

var commandInfo = &cli.Command{
	Name:  "info",
	Usage: "print the pool summary and validator list",
	Flags: []cli.Flag{
		jsonFlag,
	},
	Action: func(ctx *cli.Context) error {
		store, err := openStore(ctx, StoreConfig{}, true)
		if err != nil {
			return err
		}
		defer store.Close()
		pool, err := store.Load()
		if err != nil {
			return err
		}

		if ctx.Bool(jsonFlag.Name) {
			enc := json.NewEncoder(ctx.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(pool)
		}
		printPool(ctx, pool)
		return nil
	},
}

func printPool(ctx *cli.Context, p *stakepool.Pool) {
	w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Pool:\t%s\n", p.Address)
	fmt.Fprintf(w, "Manager:\t%s\n", p.Manager)
	fmt.Fprintf(w, "Staker:\t%s\n", p.Staker)
	fmt.Fprintf(w, "Fee account:\t%s\n", p.ManagerFeeAccount)
	fmt.Fprintf(w, "Version:\t%d\n", p.Version)
	fmt.Fprintf(w, "Last update epoch:\t%d\n", p.LastUpdateEpoch)
	fmt.Fprintf(w, "Total stake:\t%d\n", p.TotalStakeLamports)
	fmt.Fprintf(w, "Pool tokens:\t%d\n", p.TotalPoolTokens)
	fmt.Fprintf(w, "Exchange rate:\t%.9f\n", p.ExchangeRate())
	fmt.Fprintf(w, "Reserve:\t%d\n", p.Reserve.Lamports)
	fmt.Fprintf(w, "Validators:\t%d/%d\n", len(p.Validators), p.Limits.MaxValidators)
	for _, kind := range stakepool.FeeKinds() {
		entry := p.Fees.Entry(kind)
		if entry.Pending != nil {
			fmt.Fprintf(w, "Fee %s:\t%s (%s from epoch %d)\n", kind, entry.Current, *entry.Pending, entry.EffectiveEpoch)
		} else {
			fmt.Fprintf(w, "Fee %s:\t%s\n", kind, entry.Current)
		}
	}
	w.Flush()

	if len(p.Validators) == 0 {
		return
	}
	fmt.Fprintln(ctx.App.Writer)
	w = tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VOTE ACCOUNT\tACTIVE\tTRANSIENT\tDIRECTION\tUPDATED")
	for _, v := range p.Validators {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\n", v.VoteAccount, v.ActiveStakeLamports,
			v.TransientStakeLamports, v.TransientDirection, v.LastUpdateEpoch)
	}
	w.Flush()
}

var commandJournal = &cli.Command{
	Name:  "journal",
	Usage: "print recent journal entries as JSON lines, newest first",
	Flags: []cli.Flag{
		limitFlag,
	},
	Action: func(ctx *cli.Context) error {
		store, err := openStore(ctx, StoreConfig{}, true)
		if err != nil {
			return err
		}
		defer store.Close()

		receipts, err := store.Journal(ctx.Int(limitFlag.Name))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(ctx.App.Writer)
		for i := range receipts {
			if err := enc.Encode(&receipts[i]); err != nil {
				return err
			}
		}
		return nil
	},
}

var commandExport = &cli.Command{
	Name:  "export",
	Usage: "write a compressed snapshot of the pool, journal and token balances",
	Description: `
The daemon must be stopped while exporting.`,
	Flags: []cli.Flag{
		outFlag,
	},
	Action: func(ctx *cli.Context) error {
		store, err := openStore(ctx, StoreConfig{}, true)
		if err != nil {
			return err
		}
		defer store.Close()
		ledger, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()

		snap, err := store.Snapshot()
		if err != nil {
			return err
		}
		err = ledger.IterateBalances(func(account types.Pubkey, amount uint64) error {
			snap.Balances = append(snap.Balances, poolstore.Balance{Account: account, Amount: amount})
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "read token balances")
		}
		if ledger.Supply() != snap.Pool.TotalPoolTokens {
			log.Warn("Token supply differs from pool", "supply", ledger.Supply(), "pool", snap.Pool.TotalPoolTokens)
		}

		out := ctx.String(outFlag.Name)
		f, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "create snapshot file")
		}
		if err := poolstore.WriteSnapshot(f, snap); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Info("Snapshot exported", "file", out, "version", snap.Pool.Version,
			"journal", len(snap.Journal), "holders", len(snap.Balances))
		return nil
	},
}

var commandImport = &cli.Command{
	Name:  "import",
	Usage: "restore a snapshot into an empty data directory",
	Flags: []cli.Flag{
		inFlag,
	},
	Action: func(ctx *cli.Context) error {
		f, err := os.Open(ctx.String(inFlag.Name))
		if err != nil {
			return errors.Wrap(err, "open snapshot file")
		}
		defer f.Close()
		snap, err := poolstore.ReadSnapshot(f)
		if err != nil {
			return err
		}

		var supply uint64
		for _, b := range snap.Balances {
			supply += b.Amount
		}
		if supply != snap.Pool.TotalPoolTokens {
			return errors.Errorf("snapshot balances sum to %d, pool supply is %d", supply, snap.Pool.TotalPoolTokens)
		}

		store, err := openStore(ctx, StoreConfig{}, false)
		if err != nil {
			return err
		}
		defer store.Close()
		ledger, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if ledger.Supply() != 0 {
			return errors.Errorf("token ledger at %s is not empty", tokensPath(ctx))
		}

		if err := store.Restore(snap); err != nil {
			return err
		}
		for _, b := range snap.Balances {
			if err := ledger.Mint(b.Account, b.Amount); err != nil {
				return errors.Wrapf(err, "restore balance of %s", b.Account)
			}
		}
		log.Info("Snapshot imported", "version", snap.Pool.Version, "digest", snap.Digest,
			"holders", len(snap.Balances))
		return nil
	},
}

func openStore(ctx *cli.Context, sc StoreConfig, readOnly bool) (*poolstore.BoltStore, error) {
	cfg := poolstore.DefaultConfig(storePath(ctx))
	cfg.ReadOnly = readOnly
	cfg.NoSync = sc.NoSync
	cfg.JournalRetain = sc.JournalRetain
	store, err := poolstore.Open(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open pool store %s", cfg.Path)
	}
	return store, nil
}

func openLedger(ctx *cli.Context) (*tokens.BadgerLedger, error) {
	ledger, err := tokens.OpenBadger(tokens.DefaultBadgerConfig(tokensPath(ctx)))
	if err != nil {
		return nil, errors.Wrapf(err, "open token ledger %s", tokensPath(ctx))
	}
	return ledger, nil
}
