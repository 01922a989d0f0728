package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tweetstream/internal/config"
	"github.com/JakeFAU/tweetstream/internal/resolve"
	twittersrc "github.com/JakeFAU/tweetstream/internal/source/twitter"
)

func newResolveCmd() *cobra.Command {
	var (
		credentials string
		apiBaseURL  string
	)
	cmd := &cobra.Command{
		Use:   "resolve <handle>...",
		Short: "Print the numeric user id for each handle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := config.LoadCredentials(credentials)
			if err != nil {
				return err
			}
			client, err := resolve.Rebase(twittersrc.NewOAuthClient(creds), apiBaseURL)
			if err != nil {
				return err
			}
			r := resolve.NewTwitterResolver(client)
			failed := 0
			for _, handle := range args {
				id, err := r.Resolve(cmd.Context(), handle)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\t%v\n", resolve.Normalize(handle), err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", resolve.Normalize(handle), id)
			}
			if failed == len(args) {
				return fmt.Errorf("no handles resolved")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&credentials, config.FlagCredentials, "c", "credentials.env", "dotenv file holding OAuth credentials")
	cmd.Flags().StringVar(&apiBaseURL, "api-base-url", "https://api.twitter.com/1.1/", "REST API base URL")
	return cmd
}
