package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/pagechat/langdetect"
	"github.com/vinayprograms/pagechat/relay"
)

func newFetchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url>",
		Short: "Print the cleaned text of a page and its detected language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			text, err := a.fetcher.Fetch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s", relay.Render(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Language: %s\n", langdetect.OrUnknown(a.detector, text))
			fmt.Fprintf(out, "Characters: %d\n\n", len([]rune(text)))
			fmt.Fprintln(out, text)
			return nil
		},
	}
}
