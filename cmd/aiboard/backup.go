// ABOUTME: Backup command writing a consistent snapshot of the database
// ABOUTME: The snapshot is named <db file>.bak.<UTC timestamp>

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the database",
		Long:  "Writes a verified snapshot of the database and prints its path. The default directory is the database's own.",
		Args:  noArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			path, err := a.store.Backup(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory for the backup file")
	return cmd
}
