package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "podctl",
	Short: "podctl talks to the podqueue controller",
	Long: `podctl is the command-line interface for podqueue, which imports podcast
feeds and enriches their episodes with transcripts, summaries, entities
and topics using a shared job queue.

Common workflows:

  Import a feed:
    podctl import https://feeds.example.com/show.xml

  Transcribe an episode, then summarize it:
    podctl transcribe <episode-id>
    podctl summarize <episode-id>

  Watch a job:
    podctl job <job-id>
    podctl logs <job-id> --follow

  List failed jobs:
    podctl jobs --status failed

Configuration:
  Flags, environment variables or $HOME/.podctl.yaml:
    PODQUEUE_URL      Controller URL (default: http://localhost:6161)
    PODQUEUE_TOKEN    Internal secret, needed by "podctl sync"`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".podctl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PODQUEUE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		rootCmd.PrintErrln("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.podctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "podqueue controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "internal secret for /internal routes")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// newClient builds a client from the resolved url and token.
func newClient() *Client {
	return NewClient(viper.GetString("url"), viper.GetString("token"))
}
