package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bulkpress/internal/models"
)

func newProvidersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers per capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			described := a.Registry.Describe()
			order := a.Pipeline.JobConfig().ProviderOrder

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CAPABILITY\tPROVIDERS\tORDER")
			for _, capability := range models.Capabilities {
				names := strings.Join(described[capability], ",")
				if names == "" {
					names = "-"
				}
				ord := "registration"
				if o := order[capability]; len(o) > 0 {
					ord = strings.Join(o, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", capability, names, ord)
			}
			return w.Flush()
		},
	}
}
