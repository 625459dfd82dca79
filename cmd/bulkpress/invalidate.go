package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInvalidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Remove cached provider results matching a pattern",
		Long: `Remove cached provider results whose fingerprint matches pattern.

Patterns use glob syntax (*, ?, [...]); a pattern without metacharacters is a
prefix, so "research:" drops every cached research result. Only the shared
Redis level outlives a process, so this needs REDIS_URL to have any effect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.RedisURL == "" {
				c.logger.Warn("REDIS_URL is not set, only the empty local cache is searched")
			}

			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.Cache.Invalidate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return nil
		},
	}
}
