package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	jobsStatus string
	jobsType   string
	jobsLimit  int
	jobsOffset int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListJobs(jobsStatus, jobsType, jobsLimit, jobsOffset)
		if err != nil {
			return err
		}

		if len(list) == 0 {
			cmd.Println("No jobs found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tRETRIES\tCREATED\tERROR")
		for _, j := range list {
			errMsg := "-"
			if j.Error != nil {
				errMsg = truncate(*j.Error, 60)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s ago\t%s\n",
				j.ID, j.Type, j.Status, j.Retries, relativeTime(j.CreatedAt), errMsg)
		}
		return w.Flush()
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, processing, completed, failed)")
	jobsCmd.Flags().StringVar(&jobsType, "type", "", "filter by job type")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum number of jobs")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "number of jobs to skip")
}
