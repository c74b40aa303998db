package config

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/iov-one/offchain/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfig(t *testing.T) {
	Convey("Given an empty environment", t, func() {
		c, err := LoadEnvironment(map[string]string{})
		So(err, ShouldBeNil)

		Convey("Defaults are valid", func() {
			So(c.Validate(), ShouldBeNil)
			So(c.LogLevel, ShouldEqual, "info")
			So(c.BlockInterval, ShouldEqual, 100*time.Millisecond)
			So(c.MaxBlockTxs, ShouldEqual, 100)
			So(c.RequestTimeout, ShouldEqual, 30*time.Second)
			So(c.Home, ShouldEqual, "")
		})

		Convey("Flags override the values", func() {
			fl := flag.NewFlagSet("test", flag.ContinueOnError)
			c.RegisterFlags(fl)
			So(fl.Parse([]string{"-log", "debug", "-max-block-txs", "7", "-home", "/tmp/x"}), ShouldBeNil)
			So(c.LogLevel, ShouldEqual, "debug")
			So(c.MaxBlockTxs, ShouldEqual, 7)
			So(c.Home, ShouldEqual, "/tmp/x")
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Invalid values are rejected", func() {
			c.LogLevel = "loud"
			So(errors.ErrInput.Is(c.Validate()), ShouldBeTrue)
			c.LogLevel = "error"
			c.ChainRPC = ""
			So(errors.ErrEmpty.Is(c.Validate()), ShouldBeTrue)
			c.ChainRPC = "tcp://localhost:26657"
			c.BlockInterval = 0
			So(errors.ErrInput.Is(c.Validate()), ShouldBeTrue)
		})

		Convey("The logger filters by level", func() {
			var buf bytes.Buffer
			c.LogLevel = "error"
			logger, err := c.Logger(&buf)
			So(err, ShouldBeNil)
			logger.Info("hidden")
			So(buf.Len(), ShouldEqual, 0)
			logger.Error("shown")
			So(buf.String(), ShouldContainSubstring, "shown")
		})
	})

	Convey("Environment variables are read", t, func() {
		c, err := LoadEnvironment(map[string]string{
			"OFFCHAIN_DEBUG":          "true",
			"OFFCHAIN_BLOCK_INTERVAL": "2s",
			"OFFCHAIN_CHAIN_RPC":      "tcp://chain:26657",
		})
		So(err, ShouldBeNil)
		So(c.Debug, ShouldBeTrue)
		So(c.BlockInterval, ShouldEqual, 2*time.Second)
		So(c.ChainRPC, ShouldEqual, "tcp://chain:26657")
	})

	Convey("Malformed variables fail to load", t, func() {
		_, err := LoadEnvironment(map[string]string{"OFFCHAIN_MAX_BLOCK_TXS": "many"})
		So(errors.ErrInput.Is(err), ShouldBeTrue)
	})
}
