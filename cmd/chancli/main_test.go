package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chaintest"
	"github.com/iov-one/offchain/chaintest/assert"
	"github.com/iov-one/offchain/config"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/tendermint/tendermint/libs/log"
)

func TestKeygenAndKeyaddr(t *testing.T) {
	dir, err := ioutil.TempDir("", "chancli")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)

	cases := map[string][]string{
		"random":  nil,
		"derived": {"-path", "m/44'/234'/0'"},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".key")
			args := append([]string{"-key", path}, extra...)
			assert.Nil(t, cmdKeygen(nil, ioutil.Discard, args))
			if err := cmdKeygen(nil, ioutil.Discard, args); err == nil {
				t.Fatal("existing key file was overwritten")
			}

			var out bytes.Buffer
			assert.Nil(t, cmdKeyaddr(nil, &out, []string{"-key", path}))
			enc := strings.TrimSpace(out.String())
			if !strings.HasPrefix(enc, offchain.DefaultHRP+"1") {
				t.Fatalf("unexpected address %q", enc)
			}
			key, err := readKey(path)
			assert.Nil(t, err)
			assert.Equal(t, key.Address(), chaintest.ParseAddress(t, enc))
		})
	}
}

func TestReadKey(t *testing.T) {
	dir, err := ioutil.TempDir("", "chancli")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "short.key")
	assert.Nil(t, ioutil.WriteFile(path, []byte("short"), 0600))
	_, err = readKey(path)
	assert.IsErr(t, errors.ErrInput, err)
}

func TestPrintBalance(t *testing.T) {
	ctx := context.Background()
	c := chaintest.New(t)
	addr := chaintest.RandomAddr(t)
	assert.Nil(t, c.Faucet(ctx, addr, 1234))

	var out bytes.Buffer
	assert.Nil(t, printBalance(ctx, c, &out, addr, nil))
	assert.Equal(t, addr.String()+"\t1234\n", out.String())

	err := printBalance(ctx, c, ioutil.Discard, addr, chaintest.RandomAddr(t))
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestDemo(t *testing.T) {
	conf, err := config.LoadEnvironment(map[string]string{})
	assert.Nil(t, err)
	conf.BlockInterval = 5 * time.Millisecond
	conf.RequestTimeout = 5 * time.Second

	var out bytes.Buffer
	if err := runDemo(context.Background(), conf, 1000000, &out, log.NewNopLogger()); err != nil {
		t.Fatalf("demo failed: %s\n%s", err, out.String())
	}
	lines := out.String()
	gas := ledger.GasOpen + ledger.GasDeposit + ledger.GasWithdraw
	for _, want := range []string{
		"open\n",
		"deposit\n",
		"pay\n",
		"withdraw\n",
		"bob\tchain 1100000\tchannel 0",
		"\tgas " + strconv.FormatUint(gas, 10),
	} {
		if !strings.Contains(lines, want) {
			t.Errorf("missing %q in\n%s", want, lines)
		}
	}
}
