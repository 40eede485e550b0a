package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"podqueue/pkg/api"

	"github.com/spf13/cobra"
)

var (
	follow       bool
	pollInterval = time.Second
)

var logsCmd = &cobra.Command{
	Use:   "logs [job_id]",
	Short: "Print the log of a job",
	Long:  `Print the lines a job's handler logged. With --follow, keep polling until the job is completed or failed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		client := newClient()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var lastID int64
		for {
			entries, err := client.GetLogs(jobID, lastID)
			if err != nil {
				return err
			}

			for _, entry := range entries {
				cmd.Println(entry.Content)
				lastID = max(lastID, entry.ID)
			}

			// Drain pages without waiting.
			if len(entries) > 0 {
				continue
			}
			if !follow {
				return nil
			}

			job, err := client.GetJob(jobID)
			if err != nil {
				return err
			}
			if api.Terminal(job.Status) {
				// One more page in case lines landed after the last fetch.
				entries, err := client.GetLogs(jobID, lastID)
				if err != nil {
					return err
				}
				for _, entry := range entries {
					cmd.Println(entry.Content)
				}
				cmd.Printf("Job %s\n", job.Status)
				return nil
			}

			select {
			case <-sigChan:
				return nil
			case <-time.After(pollInterval):
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling until the job finishes")
}
