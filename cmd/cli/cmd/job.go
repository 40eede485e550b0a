package cmd

import (
	"fmt"
	"strings"
	"time"

	"podqueue/pkg/api"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job [job_id]",
	Short: "Show a job",
	Long:  `Show the state of a job (pending, processing, completed, failed), its retries, last error and timestamps.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().GetJob(args[0])
		if err != nil {
			return err
		}
		printJob(cmd, job)
		return nil
	},
}

func printJob(cmd *cobra.Command, job *api.JobResponse) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(job.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sType:%s        %s\n", colorDim, colorReset, job.Type)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sRetries:%s     %d\n", colorDim, colorReset, job.Retries)
	if len(job.Payload) > 0 {
		cmd.Printf("%sPayload:%s     %s\n", colorDim, colorReset, job.Payload)
	}

	if job.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *job.Error, colorReset)
	}

	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&job.CreatedAt))
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))

	if job.StartedAt != nil && job.CompletedAt != nil {
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.CompletedAt),
			colorCyan, formatDuration(job.CompletedAt.Sub(*job.StartedAt)), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.CompletedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusColor(status string) string {
	switch status {
	case "completed":
		return colorGreen
	case "failed":
		return colorRed
	case "processing":
		return colorYellow
	case "pending":
		return colorCyan
	default:
		return ""
	}
}

func statusIcon(status string) string {
	var icon string
	switch status {
	case "completed":
		icon = "✓"
	case "failed":
		icon = "✗"
	case "processing":
		icon = "⏳"
	case "pending":
		icon = "◯"
	default:
		return "•"
	}
	return statusColor(status) + icon + colorReset
}

func colorizeStatus(status string) string {
	c := statusColor(status)
	if c == "" {
		return status
	}
	return statusIcon(status) + " " + c + strings.ToUpper(status) + colorReset
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(*t), colorReset)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(jobCmd)
}
