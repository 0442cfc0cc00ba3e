package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
)

func newHealthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every configured LLM provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			clients, err := llm.BuildTenantClients(cfg, llm.NewRegistry())
			if err != nil {
				return fmt.Errorf("build llm clients: %w", err)
			}

			health := clients.ProviderHealth(cmd.Context())
			names := make([]string, 0, len(health))
			for name := range health {
				names = append(names, name)
			}
			sort.Strings(names)

			unhealthy := 0
			for _, name := range names {
				h := health[name]
				status := "ok"
				if !h.Healthy {
					status = "unhealthy"
					unhealthy++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %s\n", name, status, h.Message)
			}
			if unhealthy > 0 {
				return fmt.Errorf("%d provider(s) unhealthy", unhealthy)
			}
			return nil
		},
	}
}
