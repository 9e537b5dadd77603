package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// readSecret prompts prompt on stderr and reads a line from stdin without
// echoing it, mirroring original_source's dialoguer::Password prompts.
// Falls back to an echoed bufio read when stdin is not a terminal (e.g.
// piped input in scripted deployments).
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readLine prompts prompt on stderr and reads one echoed line from stdin,
// used for recovery phrases rather than passwords.
func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptNewPassword asks for a password twice and requires the two entries
// to match, matching dialoguer::Password::with_confirmation.
func promptNewPassword() (string, error) {
	first, err := readSecret("Keystore password: ")
	if err != nil {
		return "", err
	}
	second, err := readSecret("Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}
