package main

import (
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "pagechat",
		Short:         "Answer prompts about a web page with an LLM",
		Long:          "pagechat fetches a web page, cleans it to text and forwards it with the user's prompt to a generative model.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to pagechat.toml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(&flags),
		newFetchCmd(&flags),
		newAskCmd(&flags),
		newVersionCmd(),
	)
	return root
}
