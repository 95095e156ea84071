package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/app"
	"github.com/agentrain/mergetrain/internal/models"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/registry"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "register, heartbeat, and list coding agents",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newAgentsRegisterCmd())
	cmd.AddCommand(newAgentsHeartbeatCmd())
	cmd.AddCommand(newAgentsListCmd())
	return cmd
}

func newAgentsRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "register the calling agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentID, err := requireAgent(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if err := withDB(func(db *DB) error {
				return registry.Register(db, agentID)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"agent_id": agentID})
		},
	}
}

func newAgentsHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "refresh the calling agent's last-seen timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentID, err := requireAgent(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if err := withDB(func(db *DB) error {
				return registry.Heartbeat(db, agentID)
			}); err != nil {
				return err
			}
			return output.PrintSuccess(map[string]string{"agent_id": agentID})
		},
	}
}

func newAgentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			includeStale, _ := cmd.Flags().GetBool("include-stale")
			timeout := time.Duration(app.EffectiveConfig().HeartbeatTimeoutSecs) * time.Second

			var agents []models.Agent
			if err := withDB(func(db *DB) error {
				var err error
				agents, err = registry.List(db, includeStale, timeout)
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(agents)
		},
	}
	cmd.Flags().Bool("include-stale", false, "include agents past the heartbeat timeout")
	return cmd
}
