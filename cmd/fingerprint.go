package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

func newFingerprintCmd() *cobra.Command {
	var params request.Params
	var capability string

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the cache fingerprint for a set of request parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Capability = backend.Capability(capability)
			normalized := request.Normalize(params)
			if err := normalized.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), request.Fingerprint(normalized))
			return nil
		},
	}

	cmd.Flags().StringVar(&capability, "capability", "", "backend capability, e.g. dialogue")
	cmd.Flags().StringVar(&params.ContentClass, "content-class", "", "content class, e.g. conversation or story")
	cmd.Flags().StringVar(&params.Topic, "topic", "", "request topic")
	cmd.Flags().StringVar(&params.AgeBracket, "age-bracket", "", "audience age bracket")
	cmd.Flags().StringVar(&params.Locale, "locale", "", "locale, e.g. en-US")
	cmd.Flags().StringSliceVar(&params.Features, "feature", nil, "feature flag, repeatable")

	return cmd
}
