package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/iov-one/offchain/api"
	"github.com/iov-one/offchain/chain/mock"
	"github.com/iov-one/offchain/config"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/network"
	"github.com/iov-one/offchain/node"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/iov-one/offchain/wallet"
	"github.com/tendermint/tendermint/libs/log"
)

func cmdDemo(input io.Reader, output io.Writer, args []string) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Run two nodes against an in-process chain: open a channel, deposit, pay and
withdraw, printing the balances after each step.
`)
		fl.PrintDefaults()
	}
	conf.RegisterFlags(fl)
	fundFl := fl.Uint64("fund", 10000000, "Initial on chain balance of both accounts.")
	fl.Parse(args)
	if err := conf.Validate(); err != nil {
		return err
	}
	logger, err := conf.Logger(ioutil.Discard)
	if err != nil {
		return err
	}
	return runDemo(context.Background(), conf, *fundFl, output, logger)
}

func runDemo(ctx context.Context, conf config.Config, fund uint64, output io.Writer, logger log.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := mock.New(iavl.NewMemCommitStore(), mock.Config{
		BlockInterval: conf.BlockInterval,
		MaxBlockTxs:   conf.MaxBlockTxs,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := c.Run(ctx); err != nil {
			logger.Error("block loop failed", "err", err)
		}
	}()

	net := network.NewMemNetwork(logger)
	start := func() (*node.Node, error) {
		w := wallet.New(crypto.GenPrivateKey(), c, wallet.WithLogger(logger))
		peer, err := net.Join(w.Account())
		if err != nil {
			return nil, err
		}
		n, err := node.New(w, peer, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := n.Serve(ctx); err != nil {
				logger.Error("node stopped", "err", err)
			}
		}()
		if err := c.Faucet(ctx, w.Account(), fund); err != nil {
			return nil, err
		}
		return n, nil
	}
	alice, err := start()
	if err != nil {
		return fmt.Errorf("cannot start alice: %s", err)
	}
	bob, err := start()
	if err != nil {
		return fmt.Errorf("cannot start bob: %s", err)
	}
	bobAddr := bob.Wallet().Account()

	report := func(step string) error {
		fmt.Fprintf(output, "%s\n", step)
		for _, n := range []*node.Node{alice, bob} {
			balance, err := n.Wallet().Balance(ctx)
			if err != nil {
				return err
			}
			other := bobAddr
			if n == bob {
				other = alice.Wallet().Account()
			}
			inChannel, err := n.Wallet().ChannelBalance(other)
			if err != nil {
				return err
			}
			fmt.Fprintf(output, "\t%s\tchain %d\tchannel %d\n", name(n, alice), balance, inChannel)
		}
		return nil
	}

	steps := []struct {
		name string
		do   func(context.Context) error
	}{
		{"connect", func(ctx context.Context) error {
			_, err := alice.Connect(ctx, &api.ConnectRequest{RemoteAddr: bobAddr, RemoteIP: "mem"})
			return err
		}},
		{"open", func(ctx context.Context) error {
			_, err := alice.OpenChannel(ctx, &api.OpenChannelRequest{RemoteAddr: bobAddr})
			return err
		}},
		{"deposit", func(ctx context.Context) error {
			_, err := alice.Deposit(ctx, &api.DepositRequest{RemoteAddr: bobAddr, LocalAmount: fund / 2, RemoteAmount: fund / 2})
			return err
		}},
		{"pay", func(ctx context.Context) error {
			_, err := alice.Pay(ctx, &api.PayRequest{RemoteAddr: bobAddr, Amount: fund / 10})
			return err
		}},
		{"withdraw", func(ctx context.Context) error {
			_, err := alice.Withdraw(ctx, &api.WithdrawRequest{
				RemoteAddr:   bobAddr,
				LocalAmount:  fund/2 - fund/10,
				RemoteAmount: fund/2 + fund/10,
			})
			return err
		}},
	}
	for _, s := range steps {
		stepCtx, stepCancel := context.WithTimeout(ctx, conf.RequestTimeout)
		err := s.do(stepCtx)
		stepCancel()
		if err != nil {
			return fmt.Errorf("%s: %s", s.name, err)
		}
		if s.name == "connect" {
			continue
		}
		if err := report(s.name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(output, "blocks %d\tgas %d\n", len(c.Blocks()), alice.Wallet().GasUsed())
	return err
}

func name(n, alice *node.Node) string {
	if n == alice {
		return "alice"
	}
	return "bob"
}
