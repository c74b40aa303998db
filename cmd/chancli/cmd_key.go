package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/crypto"
)

func defaultKeyPath() string {
	return env("CHANCLI_PRIV_KEY", os.Getenv("HOME")+"/.chancli.priv.key")
}

func cmdKeygen(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Generate a new private key.

When successful a new file with binary content containing private key is
created. This command fails if the private key file already exists. When a
derivation path is given, the key is derived from a random master seed.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use CHANCLI_PRIV_KEY environment variable to set it.")
		derivFl = fl.String("path", "", "Optional SLIP-0010 derivation path, for example m/44'/234'/0'.")
	)
	fl.Parse(args)

	if _, err := os.Stat(*keyPathFl); !os.IsNotExist(err) {
		// Never overwrite a key, the user must delete it first.
		return fmt.Errorf("private key file %q already exists, delete this file and try again", *keyPathFl)
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("cannot read random seed: %s", err)
	}
	var (
		key crypto.PrivateKey
		err error
	)
	if *derivFl != "" {
		key, err = crypto.DeriveKey(*derivFl, seed)
	} else {
		key, err = crypto.PrivateKeyFromSeed(seed)
	}
	if err != nil {
		return fmt.Errorf("cannot generate key: %s", err)
	}

	fd, err := os.OpenFile(*keyPathFl, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("cannot create private key file: %s", err)
	}
	defer fd.Close()

	if _, err := fd.Write(key); err != nil {
		return fmt.Errorf("cannot write private key: %s", err)
	}
	if err := fd.Close(); err != nil {
		return fmt.Errorf("cannot close private key file: %s", err)
	}
	return nil
}

func cmdKeyaddr(input io.Reader, output io.Writer, args []string) error {
	fl := flag.NewFlagSet("", flag.ExitOnError)
	fl.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), `
Print out the bech32 address associated with your private key.
`)
		fl.PrintDefaults()
	}
	var (
		keyPathFl = fl.String("key", defaultKeyPath(),
			"Path to the private key file. You can use CHANCLI_PRIV_KEY environment variable to set it.")
		hrpFl = fl.String("hrp", offchain.DefaultHRP, "Human readable part of the address.")
	)
	fl.Parse(args)

	key, err := readKey(*keyPathFl)
	if err != nil {
		return err
	}
	addr, err := key.Address().Bech32(*hrpFl)
	if err != nil {
		return fmt.Errorf("cannot encode address: %s", err)
	}
	_, err = fmt.Fprintln(output, addr)
	return err
}

func readKey(path string) (crypto.PrivateKey, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key file: %s", err)
	}
	return crypto.ParsePrivateKey(raw)
}
