// ABOUTME: Root command of the wsaudio player binary
// ABOUTME: Binds player flags to config and runs the player application
package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wsaudio/wsaudio-go/internal/app"
	"github.com/wsaudio/wsaudio-go/internal/config"
)

// NewPlayerCommand builds the wsaudio command
func NewPlayerCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "wsaudio",
		Short: "Play a WSAudio relay stream",
		Long: `wsaudio connects to a WSAudio relay over a websocket, decodes the audio
chunks it broadcasts and plays them through the local sound card.

Without --server the player browses the local network for relays over mDNS.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load(v, cfgFile, func(c *config.Config) bool { return !c.TUI.Enabled })
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signalContext()
			defer stop()

			err = app.New(cfg).Run(ctx)
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}

	bindings := addCommonFlags(cmd, &cfgFile)
	cmd.Flags().StringP("server", "s", "", "relay address (host:port or ws:// URL); skips mDNS")
	cmd.Flags().String("name", "", "player name (default: hostname-wsaudio-player)")
	cmd.Flags().String("decoder", "libopus", "opus decoder backend (libopus, pion)")
	cmd.Flags().String("backend", "malgo", "output backend (malgo, oto, beep, portaudio, null)")
	cmd.Flags().Int("output-rate", 48000, "output device sample rate")
	cmd.Flags().Int("buffer-size", 4096, "samples per channel per device pull")
	cmd.Flags().Int("max-latency-ms", 0, "drop the oldest audio beyond this much buffering (0 = unbounded)")
	cmd.Flags().Bool("no-tui", false, "disable the TUI and stream logs to stdout")

	bindings = append(bindings,
		flagBinding{"server.address", "server"},
		flagBinding{"player.name", "name"},
		flagBinding{"codec.decoder", "decoder"},
		flagBinding{"output.backend", "backend"},
		flagBinding{"output.sample_rate", "output-rate"},
		flagBinding{"codec.buffer_size", "buffer-size"},
		flagBinding{"playout.max_latency_ms", "max-latency-ms"},
	)
	cobra.CheckErr(bindFlags(cmd, v, bindings))

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if noTUI, _ := cmd.Flags().GetBool("no-tui"); noTUI {
			v.Set("tui.enabled", false)
		}
	}

	cmd.AddCommand(newVersionCommand("wsaudio"))
	return cmd
}
