/*
Package config holds the settings of the chancli commands.

Values are read from the environment first. Command line flags registered
with RegisterFlags override them.
*/
package config

import (
	"flag"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iov-one/offchain/errors"
	"github.com/tendermint/tendermint/libs/log"
)

// Config of a channel node and of the chain application it talks to.
type Config struct {
	// Home is the directory of the persistent stores. Empty keeps
	// everything in memory.
	Home string `env:"OFFCHAIN_HOME"`
	// LogLevel is one of debug, info, error or none.
	LogLevel string `env:"OFFCHAIN_LOG_LEVEL" envDefault:"info"`
	// Debug exposes full error details in ABCI responses.
	Debug bool `env:"OFFCHAIN_DEBUG"`

	// ABCIAddr is where the chain application listens.
	ABCIAddr string `env:"OFFCHAIN_ABCI_ADDR" envDefault:"tcp://0.0.0.0:26658"`
	// ChainRPC is the tendermint RPC endpoint used by wallets.
	ChainRPC string `env:"OFFCHAIN_CHAIN_RPC" envDefault:"tcp://localhost:26657"`

	BlockInterval  time.Duration `env:"OFFCHAIN_BLOCK_INTERVAL" envDefault:"100ms"`
	MaxBlockTxs    int           `env:"OFFCHAIN_MAX_BLOCK_TXS" envDefault:"100"`
	RequestTimeout time.Duration `env:"OFFCHAIN_REQUEST_TIMEOUT" envDefault:"30s"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(errors.ErrInput, err.Error())
	}
	return c, nil
}

// LoadEnvironment reads the configuration from the given variables only.
func LoadEnvironment(vars map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: vars}); err != nil {
		return c, errors.Wrap(errors.ErrInput, err.Error())
	}
	return c, nil
}

// RegisterFlags binds the flags overriding the loaded values.
func (c *Config) RegisterFlags(fl *flag.FlagSet) {
	fl.StringVar(&c.Home, "home", c.Home, "Directory of the persistent stores, in memory if empty.")
	fl.StringVar(&c.LogLevel, "log", c.LogLevel, "Log level: debug, info, error or none.")
	fl.BoolVar(&c.Debug, "debug", c.Debug, "Return full error details.")
	fl.StringVar(&c.ABCIAddr, "abci", c.ABCIAddr, "Listen address of the chain application.")
	fl.StringVar(&c.ChainRPC, "rpc", c.ChainRPC, "Tendermint RPC address.")
	fl.DurationVar(&c.BlockInterval, "block-interval", c.BlockInterval, "Time between two blocks of the mock chain.")
	fl.IntVar(&c.MaxBlockTxs, "max-block-txs", c.MaxBlockTxs, "Transactions per block of the mock chain.")
	fl.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "Deadline of a single channel operation.")
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	if _, err := c.levelOption(); err != nil {
		return err
	}
	if c.ABCIAddr == "" {
		return errors.Wrap(errors.ErrEmpty, "abci address")
	}
	if c.ChainRPC == "" {
		return errors.Wrap(errors.ErrEmpty, "chain rpc address")
	}
	if c.BlockInterval <= 0 {
		return errors.Wrapf(errors.ErrInput, "block interval %s", c.BlockInterval)
	}
	if c.MaxBlockTxs <= 0 {
		return errors.Wrapf(errors.ErrInput, "max block txs %d", c.MaxBlockTxs)
	}
	if c.RequestTimeout <= 0 {
		return errors.Wrapf(errors.ErrInput, "request timeout %s", c.RequestTimeout)
	}
	return nil
}

func (c Config) levelOption() (log.Option, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.AllowDebug(), nil
	case "info", "":
		return log.AllowInfo(), nil
	case "error":
		return log.AllowError(), nil
	case "none":
		return log.AllowNone(), nil
	}
	return nil, errors.Wrapf(errors.ErrInput, "log level %q", c.LogLevel)
}

// Logger returns a logger writing to w filtered at the configured level.
func (c Config) Logger(w io.Writer) (log.Logger, error) {
	opt, err := c.levelOption()
	if err != nil {
		return nil, err
	}
	return log.NewFilter(log.NewTMLogger(log.NewSyncWriter(w)), opt), nil
}
