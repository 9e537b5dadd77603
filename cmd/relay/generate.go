package main

import (
	"crypto/ed25519"
	"crypto/sha256"
	"flag"
	"fmt"

	bip39 "github.com/FactomProject/go-bip39"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/ton-relay/pkg/keystore"
)

// mnemonicEntropyBits produces a 24-word BIP-39 recovery phrase, matching
// the word count original_source's dialoguer flow prints for both the ETH
// and the TON seed.
const mnemonicEntropyBits = 256

// generateSeedMaterial produces (or imports) the mnemonic and the seed
// bytes derived from it for one of the two key slots a keystore holds.
func generateSeedMaterial(label string, doImport bool) (mnemonic string, seed []byte, err error) {
	if doImport {
		mnemonic, err = readLine(fmt.Sprintf("%s recovery phrase: ", label))
		if err != nil {
			return "", nil, err
		}
		if !bip39.IsMnemonicValid(mnemonic) {
			return "", nil, fmt.Errorf("%s recovery phrase is not a valid BIP-39 mnemonic", label)
		}
	} else {
		entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
		if err != nil {
			return "", nil, fmt.Errorf("generate %s entropy: %w", label, err)
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return "", nil, fmt.Errorf("generate %s mnemonic: %w", label, err)
		}
	}
	seed = bip39.NewSeed(mnemonic, "")
	return mnemonic, seed, nil
}

func generateCommand(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	doImport := fs.Bool("import", false, "import existing TON/ETH recovery phrases instead of generating new ones")
	emptyPassword := fs.Bool("empty-password", false, "encrypt the keystore with an empty password (not recommended)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay generate [flags] <output-path>")
	}
	output := fs.Arg(0)

	tonMnemonic, tonSeed, err := generateSeedMaterial("TON", *doImport)
	if err != nil {
		return err
	}
	fmt.Printf("TON recovery phrase: %s\n", tonMnemonic)
	tonPriv := ed25519.NewKeyFromSeed(tonSeed[:ed25519.SeedSize])

	ethMnemonic, ethSeed, err := generateSeedMaterial("ETH", *doImport)
	if err != nil {
		return err
	}
	fmt.Printf("ETH recovery phrase: %s\n", ethMnemonic)
	ethDigest := sha256.Sum256(ethSeed)
	ethKey, err := crypto.ToECDSA(ethDigest[:])
	if err != nil {
		return fmt.Errorf("derive eth key: %w", err)
	}

	password := ""
	if !*emptyPassword {
		password, err = promptNewPassword()
		if err != nil {
			return err
		}
	}

	if err := keystore.Create(output, password, ethKey, tonPriv, ethMnemonic, tonMnemonic); err != nil {
		return fmt.Errorf("create keystore %s: %w", output, err)
	}

	fmt.Printf("Generated TON data (public key %x)\n", tonPriv.Public().(ed25519.PublicKey))
	fmt.Printf("Generated ETH data (address %s)\n", crypto.PubkeyToAddress(ethKey.PublicKey))
	fmt.Printf("Wrote keystore to %s\n", output)
	return nil
}
