package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/gateway"
)

// newSignCmd creates the 'sign' subcommand that prints a signed request
// path for a source URI and query string.
func newSignCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "sign <audio-uri>",
		Short: "Prints a signed request path for a source and query string",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Application.HMACSecret == "" {
				return fmt.Errorf("application.hmac_secret is not configured")
			}

			values, err := url.ParseQuery(query)
			if err != nil {
				return fmt.Errorf("parse query: %w", err)
			}
			limits := gateway.ParseLimits{MaxFilterOps: cfg.Processor.MaxFilterOps}
			params, err := gateway.ParseQuery(args[0], values, limits)
			if err != nil {
				return fmt.Errorf("parse parameters: %w", err)
			}

			safe := gateway.NewSafeChars(cfg.Storage.SafeChars)
			canonical := gateway.CanonicalString(args[0], params, safe)
			signer := gateway.NewSigner([]byte(cfg.Application.HMACSecret))
			sig := signer.Sign(canonical)

			path := "/" + sig + "/" + args[0]
			if qs := params.QueryString(); qs != "" {
				path += "?" + qs
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "processing parameters as a raw query string")
	return cmd
}
