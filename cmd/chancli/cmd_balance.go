package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/chain/rpc"
	"github.com/iov-one/offchain/config"
)

func cmdBalance(input io.Reader, output io.Writer, args []string) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print the on chain balance of an account, and of its channel with another
account when -with is given.
`)
		fl.PrintDefaults()
	}
	conf.RegisterFlags(fl)
	var (
		addrFl = fl.String("addr", "", "Address of the account, hex or bech32. Defaults to the address of -key.")
		withFl = fl.String("with", "", "Address of the channel counterparty.")
		keyFl  = fl.String("key", defaultKeyPath(), "Path to the private key file.")
	)
	fl.Parse(args)
	if err := conf.Validate(); err != nil {
		return err
	}
	logger, err := conf.Logger(os.Stderr)
	if err != nil {
		return err
	}

	addr, err := offchain.ParseAddress(*addrFl)
	if err != nil {
		return fmt.Errorf("invalid address: %s", err)
	}
	if addr == nil {
		key, err := readKey(*keyFl)
		if err != nil {
			return err
		}
		addr = key.Address()
	}
	other, err := offchain.ParseAddress(*withFl)
	if err != nil {
		return fmt.Errorf("invalid counterparty: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.RequestTimeout)
	defer cancel()
	return printBalance(ctx, rpc.Dial(conf.ChainRPC, logger), output, addr, other)
}

func printBalance(ctx context.Context, c chain.Client, output io.Writer, addr, other offchain.Address) error {
	balance, err := c.Balance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "%s\t%d\n", addr, balance)
	if other == nil {
		return nil
	}
	rec, err := c.Channel(ctx, addr, other)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(output, "channel %d\tsettled %d\tnext %d\n", rec.ID, rec.Settled, rec.NextSeq)
	return err
}
