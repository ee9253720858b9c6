package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/cip/catalog"
	"github.com/tturner/cipstack/internal/errors"
)

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

func missingFlagError(cmd *cobra.Command, flag string) error {
	_ = cmd.Help()
	return fmt.Errorf("required flag %s not set", flag)
}

func missingArgError(cmd *cobra.Command, arg string) error {
	_ = cmd.Help()
	return fmt.Errorf("required argument %s not given", arg)
}

// hexInput decodes a hex argument, reading it from stdin when it is "-".
func hexInput(cmd *cobra.Command, arg, what string) ([]byte, error) {
	text := arg
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	b, err := catalog.DecodeHex(text)
	if err != nil {
		return nil, errors.WrapDecodeError(err, what)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%s: no bytes given", what)
	}
	return b, nil
}
