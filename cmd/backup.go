package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/core/backup"
	"github.com/AvaProtocol/ap-userop/core/config"
	"github.com/AvaProtocol/ap-userop/storage"
)

var (
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Back up the submission journal",
		Long: `Back up the submission journal at db_path to a directory.

Backups are stored as <dir>/yy-mm-dd-hh-mm-ss/journal.backup.
With --interval the command keeps running and takes a backup every interval
until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			interval, _ := cmd.Flags().GetDuration("interval")

			svc, closeDB, err := backupService(dir)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := commandContext(cmd)
			if interval > 0 {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				fmt.Fprintf(cmd.OutOrStdout(), "🔁 Backing up every %s to %s, Ctrl-C to stop\n", interval, dir)
				return svc.Run(ctx, interval)
			}

			file, err := svc.PerformBackup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Journal backed up to %s\n", file)
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the submission journal from a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")

			svc, closeDB, err := backupService("")
			if err != nil {
				return err
			}
			defer closeDB()

			if err := svc.Restore(commandContext(cmd), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Journal restored from %s\n", file)
			return nil
		},
	}
)

// backupService opens the journal database only; no chain or bundler is
// needed to back it up.
func backupService(dir string) (*backup.Service, func(), error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewWithPath(cfg.DbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open journal at %s: %w", cfg.DbPath, err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			cfg.Logger.Error("Cannot close journal", "err", err)
		}
	}
	return backup.NewService(cfg.Logger, db, dir), closeDB, nil
}

func init() {
	backupCmd.Flags().String("dir", "./backup", "Directory to store backups")
	backupCmd.Flags().Duration("interval", 0, "Run backups periodically, 0 for a one-time backup")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().String("file", "", "Backup file to restore from (required)")
	_ = restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
