package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings-store/pkg/di"
)

type credentialResult struct {
	Service string `json:"service"`
	Key     string `json:"key"`
	Version int64  `json:"version,omitempty"`
	Value   string `json:"value,omitempty"`
	Found   bool   `json:"found"`
}

func newCredCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cred",
		Short: "Store and read encrypted service credentials",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "store SERVICE KEY VALUE",
			Short: "Encrypt and store a credential",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
					version, err := c.CredentialStore().Store(ctx, args[0], args[1], args[2])
					if err != nil {
						return err
					}
					return printJSON(cmd, credentialResult{Service: args[0], Key: args[1], Version: version, Found: true})
				})
			},
		},
		&cobra.Command{
			Use:   "get SERVICE KEY",
			Short: "Decrypt and print a credential",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
					value, found, err := c.CredentialStore().Get(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					return printJSON(cmd, credentialResult{Service: args[0], Key: args[1], Value: value, Found: found})
				})
			},
		},
	)
	return cmd
}
