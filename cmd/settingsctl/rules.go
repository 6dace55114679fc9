package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings-store/pkg/di"
	"github.com/goliatone/go-settings-store/rules"
)

func newRulesCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage assignment rules",
	}
	cmd.AddCommand(newRulesAddCmd(flags), &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
				list, err := c.RuleEngine().Rules(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	})
	return cmd
}

func newRulesAddCmd(flags *rootFlags) *cobra.Command {
	var priority, severity, module, team string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a rule to the decision table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule := rules.Rule{AssignedTeam: team}
			if cmd.Flags().Changed("test-priority") {
				rule.TestPriority = &priority
			}
			if cmd.Flags().Changed("defect-severity") {
				rule.DefectSeverity = &severity
			}
			if cmd.Flags().Changed("module") {
				rule.Module = &module
			}

			return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
				added, err := c.RuleEngine().AddRule(ctx, rule)
				if err != nil {
					return err
				}
				return printJSON(cmd, added)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&priority, "test-priority", "", "match on test priority")
	f.StringVar(&severity, "defect-severity", "", "match on defect severity")
	f.StringVar(&module, "module", "", "match on module")
	f.StringVar(&team, "team", "", "team assigned when the rule matches")
	return cmd
}

func newAssignCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "assign FIELD=VALUE...",
		Short:   "Evaluate the rules against ordered criteria",
		Example: "  settingsctl assign test_priority=High module=Auth",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parsePairs(args)
			if err != nil {
				return err
			}
			criteria := make(rules.Criteria, 0, len(pairs))
			for _, p := range pairs {
				criteria = criteria.With(p[0], p[1])
			}

			return withContainer(cmd, flags, func(ctx context.Context, c *di.Container) error {
				assignment, err := c.RuleEngine().Evaluate(ctx, criteria)
				if err != nil {
					return err
				}
				return printJSON(cmd, assignment)
			})
		},
	}
}
