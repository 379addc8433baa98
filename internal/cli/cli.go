// ABOUTME: Shared cobra plumbing for the wsaudio binaries
// ABOUTME: Config loading, logging setup, signal handling and the version command
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wsaudio/wsaudio-go/internal/config"
	"github.com/wsaudio/wsaudio-go/internal/logging"
	"github.com/wsaudio/wsaudio-go/internal/version"
)

// flagBinding ties a command flag to a viper key
type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds every flag to its key on v
func bindFlags(cmd *cobra.Command, v *viper.Viper, bindings []flagBinding) error {
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}

// addCommonFlags registers the flags both binaries share
func addCommonFlags(cmd *cobra.Command, cfgFile *string) []flagBinding {
	cmd.PersistentFlags().StringVar(cfgFile, "config", "", "config file (default is ./wsaudio.yaml)")
	cmd.Flags().String("codec", "opus", "stream codec (opus, pcm, mp3)")
	cmd.Flags().Int("sample-rate", 24000, "stream sample rate")
	cmd.Flags().Int("channels", 2, "stream channel count")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "log format (text, json)")
	cmd.Flags().String("log-file", "", "log file path")
	cmd.Flags().String("metrics", "", "serve Prometheus metrics on this address")

	return []flagBinding{
		{"codec.name", "codec"},
		{"codec.sample_rate", "sample-rate"},
		{"codec.channels", "channels"},
		{"logging.level", "log-level"},
		{"logging.format", "log-format"},
		{"logging.file", "log-file"},
		{"metrics.listen", "metrics"},
	}
}

// load reads and validates configuration, then sets up logging. console
// controls whether logs also go to stdout.
func load(v *viper.Viper, cfgFile string, console func(*config.Config) bool) (*config.Config, io.Closer, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	closer, err := logging.Setup(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Console: console(cfg),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, closer, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newVersionCommand(binary string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", binary, version.Version)
		},
	}
}

// Execute runs cmd and exits non-zero on error
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
