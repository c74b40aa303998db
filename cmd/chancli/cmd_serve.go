package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/iov-one/offchain/chain/abciapp"
	"github.com/iov-one/offchain/config"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/tendermint/tendermint/abci/server"
	cmn "github.com/tendermint/tendermint/libs/common"
)

func cmdServe(input io.Reader, output io.Writer, args []string) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Run the ledger as an ABCI application for a tendermint node.

The ledger keeps its state in the home directory, or in memory when no home
is configured.
`)
		fl.PrintDefaults()
	}
	conf.RegisterFlags(fl)
	fl.Parse(args)
	if err := conf.Validate(); err != nil {
		return err
	}
	logger, err := conf.Logger(os.Stderr)
	if err != nil {
		return err
	}

	store := iavl.NewMemCommitStore()
	if conf.Home != "" {
		if store, err = iavl.NewCommitStore(conf.Home, "ledger"); err != nil {
			return fmt.Errorf("cannot open store: %s", err)
		}
	}
	app, err := abciapp.New("offchain", store, conf.Debug, logger)
	if err != nil {
		store.Close()
		return err
	}

	logger.Info("Starting ABCI app", "bind", conf.ABCIAddr)
	svr, err := server.NewServer(conf.ABCIAddr, "socket", app)
	if err != nil {
		store.Close()
		return fmt.Errorf("cannot create listener: %s", err)
	}
	svr.SetLogger(logger.With("module", "abci-server"))
	if err := svr.Start(); err != nil {
		store.Close()
		return fmt.Errorf("cannot start server: %s", err)
	}

	cmn.TrapSignal(logger, func() {
		svr.Stop()
		store.Close()
	})
	// TrapSignal exits the process on a signal.
	select {}
}
