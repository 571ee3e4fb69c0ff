package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/cmd"
)

func main() {
	logger, err := newLogger(hasVerboseFlag(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cmd.Execute(logger); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// hasVerboseFlag reports whether args ask for debug logging. The logger has
// to exist before cobra parses the flags.
func hasVerboseFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		switch arg {
		case "-v", "--verbose", "--verbose=true":
			return true
		}
	}
	return false
}
