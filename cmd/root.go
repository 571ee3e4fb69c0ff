package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/verify"
)

const defaultTimeout = 5 * time.Minute

var (
	cfgFile string
	timeout time.Duration
	verbose bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:              "permcheck [paths...]",
	Short:            "permcheck - fold/unfold permission accounting for verification programs",
	SilenceUsage:     true,
	TraverseChildren: true, // Prioritize subcommands
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
			return
		}
		// permcheck [path1 path2 ...] behaves like the verify subcommand
		verifyCmd.Run(verifyCmd, args)
	},
}

// Execute runs the CLI with the given logger. A nil logger discards output.
func Execute(l *zap.Logger) error {
	if l != nil {
		logger = l
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", verify.DefaultConfigFile, "Path to the configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "Timeout for the whole run")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(cfgCmd)
	rootCmd.AddCommand(reqsCmd)
}
