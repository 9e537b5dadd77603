// Command relay is the process entry point (C10). It dispatches to one of
// three subcommands, grounded on original_source/src/main.rs's
// App{Subcommand::{Run,Generate,Export}}: "run" starts the relay proper,
// "generate" creates a new encrypted keystore, and "export" decrypts one to
// recover its seed phrases. Flag parsing and startup logging follow the
// reference validator's main.go idiom (stdlib flag, stdlib log, explicit
// os.Exit(1) on setup failure) rather than a CLI framework.
package main

import (
	"fmt"
	"log"
	"os"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "generate":
		err = generateCommand(os.Args[2:])
	case "export":
		err = exportCommand(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "relay: unknown subcommand %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: relay <command> [flags]

commands:
  run       start the relay node
  generate  create a new encrypted keystore
  export    decrypt a keystore and print its seed phrases

run "relay <command> -h" for flags specific to a command
`)
}
