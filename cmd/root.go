package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tidewatch/tidewatch/pkg/config"
	"github.com/tidewatch/tidewatch/pkg/headless"
	"github.com/tidewatch/tidewatch/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tidewatch",
	Short: "Terminal client for long-running research streams",
	Long: `tidewatch follows a multi-agent research server's event stream,
reconstructs the conversation locally, and can reconnect to a running
workflow or replay a finished one without losing or duplicating events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRuntime(); err != nil {
			return err
		}
		defer logger.Close()

		runner, err := headless.NewRunner()
		if err != nil {
			return fmt.Errorf("failed to initialize runner: %w", err)
		}
		defer runner.Cleanup()

		if id := viper.GetString("session"); id != "" {
			runner.SwitchSession(id)
		} else if viper.GetBool("new_session") {
			runner.NewSession()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		prompt := viper.GetString("prompt")
		feedback := viper.GetString("feedback")

		if prompt == "" && feedback == "" {
			return runner.Resume(ctx)
		}
		return runner.Run(ctx, prompt, feedback)
	},
}

func initRuntime() error {
	if _, err := config.Load(cfgFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if used := config.GetConfigFileUsed(); used != "" {
		logger.Debug("Using config file: %s", used)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .tidewatch/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("server", "", "research server base URL")
	viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.Flags().StringP("prompt", "p", "", "send a new research query")
	viper.BindPFlag("prompt", rootCmd.Flags().Lookup("prompt"))

	rootCmd.Flags().String("feedback", "", "resume a paused plan with the given option (e.g. accepted)")
	viper.BindPFlag("feedback", rootCmd.Flags().Lookup("feedback"))

	rootCmd.Flags().Bool("new", false, "start a new session instead of continuing the persisted one")
	viper.BindPFlag("new_session", rootCmd.Flags().Lookup("new"))

	rootCmd.Flags().String("session", "", "switch to the given session id before running")
	viper.BindPFlag("session", rootCmd.Flags().Lookup("session"))
}
