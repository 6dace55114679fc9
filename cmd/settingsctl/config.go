package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings-store/configstore"
	"github.com/goliatone/go-settings-store/pkg/di"
)

type valueResult struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write configuration values",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get KEY",
			Short: "Resolve a dotted key from the configuration file snapshot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(_ context.Context, c *di.Container) error {
					value, found := c.ConfigStore().Get(args[0])
					return printJSON(cmd, valueResult{Key: args[0], Value: value, Found: found})
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print the whole configuration file snapshot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(_ context.Context, c *di.Container) error {
					return printJSON(cmd, c.ConfigStore().ListAll())
				})
			},
		},
		&cobra.Command{
			Use:   "get-versioned KEY",
			Short: "Read the current stored value of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
					value, found, err := c.ConfigStore().GetVersioned(ctx, args[0])
					if err != nil {
						return err
					}
					res := valueResult{Key: args[0], Found: found}
					if found {
						res.Value = value
					}
					return printJSON(cmd, res)
				})
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store a new version of a key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
					version, err := c.ConfigStore().SetVersioned(ctx, args[0], args[1])
					if err != nil {
						return err
					}
					return printJSON(cmd, configstore.ConfigEntry{Key: args[0], Value: args[1], Version: version})
				})
			},
		},
		newBulkCmd(flags),
		&cobra.Command{
			Use:   "history KEY",
			Short: "List every stored version of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
					entries, err := c.ConfigStore().History(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, entries)
				})
			},
		},
	)
	return cmd
}

func newBulkCmd(flags *rootFlags) *cobra.Command {
	var atomic bool

	cmd := &cobra.Command{
		Use:   "bulk KEY=VALUE...",
		Short: "Store several keys, each as its own version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(args)
			if err != nil {
				return err
			}
			updates := make([]configstore.Update, len(pairs))
			for i, p := range pairs {
				updates[i] = configstore.Update{Key: p[0], Value: p[1]}
			}

			return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
				apply := c.ConfigStore().BulkUpdate
				if atomic {
					apply = c.ConfigStore().BulkUpdateAtomic
				}
				result, err := apply(ctx, updates)
				if err != nil {
					// partial progress is still reported
					_ = printJSON(cmd, result)
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&atomic, "atomic", false, "commit all updates in one transaction")
	return cmd
}

type featureResult struct {
	Flag    string `json:"flag"`
	Enabled bool   `json:"enabled"`
}

func newFeatureCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Inspect feature flags of the configuration snapshot",
		Long: "Inspect feature flags of the configuration snapshot. Changes made with " +
			"enable and disable last for the current process only.",
	}

	run := func(apply func(s *configstore.Store, flag string)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, flags, func(_ context.Context, c *di.Container) error {
				store := c.ConfigStore()
				if apply != nil {
					apply(store, args[0])
				}
				return printJSON(cmd, featureResult{Flag: args[0], Enabled: store.IsFeatureEnabled(args[0])})
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable FLAG",
			Short: "Enable a feature flag",
			Args:  cobra.ExactArgs(1),
			RunE:  run((*configstore.Store).EnableFeature),
		},
		&cobra.Command{
			Use:   "disable FLAG",
			Short: "Disable a feature flag",
			Args:  cobra.ExactArgs(1),
			RunE:  run((*configstore.Store).DisableFeature),
		},
		&cobra.Command{
			Use:   "status FLAG",
			Short: "Report whether a feature flag is enabled",
			Args:  cobra.ExactArgs(1),
			RunE:  run(nil),
		},
	)
	return cmd
}
