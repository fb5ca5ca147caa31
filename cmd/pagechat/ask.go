package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/pagechat/relay"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		pageURL  string
		language string
	)

	cmd := &cobra.Command{
		Use:   "ask --url <url> [--language <lang>] <prompt>",
		Short: "Run one prompt against a page without starting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			res := a.relay.Chat(ctx, relay.ChatRequest{
				Prompt:  strings.Join(args, " "),
				Context: relay.WebsiteMarker + pageURL + "\n" + relay.LanguageMarker + language,
			})
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if !res.OK() {
				return fmt.Errorf("request %s failed with %s", res.RequestID, res.Code())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pageURL, "url", "u", "", "Page to answer from")
	cmd.Flags().StringVarP(&language, "language", "l", "none", "Translate the answer into this language (none to skip)")
	cmd.MarkFlagRequired("url")
	return cmd
}
