package main

import (
	"flag"
	"fmt"

	"github.com/certen/ton-relay/pkg/keystore"
)

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	emptyPassword := fs.Bool("empty-password", false, "the keystore was created with an empty password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay export [flags] <keystore-path>")
	}
	from := fs.Arg(0)

	password := ""
	if !*emptyPassword {
		var err error
		password, err = readSecret("Keystore password: ")
		if err != nil {
			return err
		}
	}

	handle, err := keystore.Open(from, password)
	if err != nil {
		return fmt.Errorf("open keystore %s: %w", from, err)
	}
	defer handle.Close()

	seeds := handle.Export()
	fmt.Printf("TON recovery phrase: %s\n", seeds.TonSeedPhrase)
	fmt.Printf("TON public key: %x\n", handle.TonPubkey())
	fmt.Printf("ETH recovery phrase: %s\n", seeds.EthSeedPhrase)
	fmt.Printf("ETH address: %x\n", handle.EthAddress())
	return nil
}
