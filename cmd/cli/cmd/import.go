package cmd

import (
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [feed_url]",
	Short: "Import a podcast feed",
	Long: `Queue an import of the podcast at feed_url. Importing a feed that is
already known returns the existing podcast, unless its last import failed,
in which case the import is queued again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().ImportPodcast(args[0])
		if err != nil {
			return err
		}

		if resp.JobID == "" {
			cmd.Printf("Podcast already imported (status: %s)\n", resp.Status)
			cmd.Printf("Podcast ID: %s\n", resp.PodcastID)
			return nil
		}

		if resp.IsNew {
			cmd.Println("Podcast created, import queued")
		} else {
			cmd.Println("Previous import failed, import queued again")
		}
		cmd.Printf("Podcast ID: %s\n", resp.PodcastID)
		cmd.Printf("Job ID:     %s\n", resp.JobID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
