package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentrain/mergetrain/internal/app"
	"github.com/agentrain/mergetrain/internal/output"
	"github.com/agentrain/mergetrain/internal/recovery"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "run the store's header/size check and the stuck-session sweep",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			dbPath, err := app.GetDBPath()
			if err != nil {
				return cmdErr(err)
			}

			var report any
			if err := withDB(func(db *DB) error {
				r, err := recovery.Doctor(context.Background(), db, dbPath, nil, nil)
				if err != nil {
					return err
				}
				report = r
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(report)
		},
	}
}
