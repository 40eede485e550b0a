package cmd

import (
	"github.com/spf13/cobra"
)

// episodeAction maps a subcommand to its controller route.
type episodeAction struct {
	use    string
	action string
	short  string
}

var episodeActions = []episodeAction{
	{"transcribe", "transcribe", "Transcribe an episode's audio"},
	{"summarize", "summarize", "Summarize a transcribed episode"},
	{"entities", "extract-entities", "Extract people, places and organizations from an episode"},
	{"topics", "extract-topics", "Extract topics from an episode"},
}

func newEpisodeCmd(a episodeAction) *cobra.Command {
	return &cobra.Command{
		Use:   a.use + " [episode_id]",
		Short: a.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().EnqueueEpisodeJob(args[0], a.action)
			if err != nil {
				return err
			}
			cmd.Printf("Job queued: %s\n", resp.JobID)
			return nil
		},
	}
}

func init() {
	for _, a := range episodeActions {
		rootCmd.AddCommand(newEpisodeCmd(a))
	}
}
