package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// isInteractiveInput reports whether stdin is a terminal. Piped input
// disables prompts; commands then require their flags instead.
func isInteractiveInput() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(reader *bufio.Reader, label string) bool {
	answer, err := prompt(reader, label+" [y/N] ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// promptSecret reads a line with terminal echo suppressed, for API tokens.
// When echo cannot be disabled (no stty, not a tty) it degrades to a plain
// visible prompt rather than failing init outright.
func promptSecret(label string) (string, error) {
	fmt.Print(label)
	restore := suppressEcho()
	defer restore()

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// suppressEcho turns terminal echo off and returns the undo function.
func suppressEcho() func() {
	if !isInteractiveInput() {
		return func() {}
	}
	if err := stty("-echo"); err != nil {
		return func() {}
	}
	return func() {
		_ = stty("echo")
		fmt.Println()
	}
}

func stty(arg string) error {
	cmd := exec.Command("stty", arg)
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
