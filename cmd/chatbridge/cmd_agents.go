package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var agentsYAML bool

func init() {
	agentsCmd.Flags().BoolVar(&agentsYAML, "yaml", false, "print as YAML")
	rootCmd.AddCommand(agentsCmd)
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents served by the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		agents, err := newClient(cfg).ListAgents(context.Background())
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}

		if agentsYAML {
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(agents)
		}

		if len(agents) == 0 {
			fmt.Println("No agents found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, a := range agents {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.AgentID, a.Name, a.Description)
		}
		return w.Flush()
	},
}
