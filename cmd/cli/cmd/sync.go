package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Queue a refresh of all stale podcasts",
	Long:  `Queue a sync_podcasts job, unless one is already pending or processing. Requires the internal secret (--token or PODQUEUE_TOKEN).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("token") == "" {
			return errors.New("token not found, set it with --token or the PODQUEUE_TOKEN environment variable")
		}

		resp, err := newClient().TriggerSync()
		if err != nil {
			return err
		}
		if resp.Created {
			cmd.Printf("Sync queued: %s\n", resp.JobID)
		} else {
			cmd.Printf("Sync already active: %s\n", resp.JobID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
