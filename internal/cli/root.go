// Package cli wires the canonical operations — init, add, remove, list,
// spawn, work, done, abort, sync, queue, agents, checkpoint, doctor, clean —
// onto a cobra command tree: persistent flags for db-path/agent, a JSON
// response envelope, and slog for command-failure logging.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/app"
	"github.com/agentrain/mergetrain/internal/output"
)

// Execute runs the CLI application and returns the error that should drive
// the process exit code (see ExitCodeFor).
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "mergetrain",
		Short:         "Coordinates concurrent coding agents across isolated JJ workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "override database path")
	root.PersistentFlags().StringP("agent", "a", "", "agent id (default: $MERGETRAIN_AGENT)")
	root.Flags().BoolP("version", "v", false, "print version and exit")

	root.AddCommand(newInitCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newSpawnCmd())
	root.AddCommand(newWorkCmd())
	root.AddCommand(newDoneCmd())
	root.AddCommand(newAbortCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newQueueCmd())
	root.AddCommand(newAgentsCmd())
	root.AddCommand(newCheckpointCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCleanCmd())

	return root.Execute()
}

// requireAgent reads --agent, falling back to MERGETRAIN_AGENT.
func requireAgent(cmd *cobra.Command) (string, error) {
	agent, _ := cmd.Flags().GetString("agent")
	if agent == "" {
		agent = os.Getenv("MERGETRAIN_AGENT")
	}
	if agent == "" {
		return "", errRequired("--agent (or $MERGETRAIN_AGENT) is required")
	}
	return agent, nil
}

type validationError string

func (e validationError) Error() string       { return string(e) }
func (e validationError) ErrorCode() string   { return "VALIDATION" }
func (e validationError) Context() map[string]string { return nil }
func (e validationError) SuggestedAction() string { return "check the command's required flags" }

func errRequired(msg string) error { return validationError(msg) }
