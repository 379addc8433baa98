// ABOUTME: Root command of the wsaudio-relay binary
// ABOUTME: Builds a source and encoder from config and serves the relay
package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wsaudio/wsaudio-go/internal/config"
	"github.com/wsaudio/wsaudio-go/internal/logging"
	"github.com/wsaudio/wsaudio-go/internal/relay"
	"github.com/wsaudio/wsaudio-go/internal/ui"
	"github.com/wsaudio/wsaudio-go/pkg/audio/encode"
)

// NewRelayCommand builds the wsaudio-relay command
func NewRelayCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "wsaudio-relay",
		Short: "Broadcast audio to WSAudio players over websockets",
		Long: `wsaudio-relay reads a test tone or a looping MP3/FLAC file, encodes it
in fixed-duration frames and broadcasts every frame to connected players.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load(v, cfgFile, func(c *config.Config) bool { return !c.TUI.Enabled })
			if err != nil {
				return err
			}
			defer closer.Close()

			src, err := relay.NewSource(cfg.Relay.Source, cfg.Relay.File, cfg.Relay.ToneHz,
				cfg.Codec.SampleRate, cfg.Codec.Channels)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			srv, err := relay.New(relay.Config{
				Listen:        cfg.Relay.Listen,
				Path:          cfg.Server.Path,
				Name:          cfg.Relay.Name,
				StaticDir:     cfg.Relay.StaticDir,
				EnableMDNS:    cfg.Relay.MDNS,
				Format:        cfg.StreamFormat(),
				FrameDuration: time.Duration(cfg.Codec.FrameDurationMs) * time.Millisecond,
				Encoder: encode.Options{
					Application: cfg.Codec.Application,
					Bitrate:     cfg.Codec.Bitrate,
				},
			}, src, relay.WithRegistry(reg), relay.WithLogger(logging.Component("relay")))
			if err != nil {
				_ = src.Close()
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			if cfg.TUI.Enabled {
				var cancel context.CancelFunc
				ctx, cancel = context.WithCancel(ctx)
				defer cancel()

				tui := ui.NewRelayTUI(relayStatus(cfg, srv))
				go func() {
					if err := tui.Run(); err != nil {
						logging.Component("relay").WithError(err).Error("TUI exited")
					}
					cancel()
				}()
				defer tui.Quit()
				go refreshRelayTUI(ctx, tui, cfg, srv)
			}

			return srv.Run(ctx)
		},
	}

	bindings := addCommonFlags(cmd, &cfgFile)
	cmd.Flags().String("listen", "0.0.0.0:8283", "HTTP listen address")
	cmd.Flags().String("name", "wsaudio-relay", "relay name advertised over mDNS")
	cmd.Flags().String("source", "tone", "audio source (tone, file)")
	cmd.Flags().String("file", "", "MP3 or FLAC file for --source file")
	cmd.Flags().Float64("tone-hz", 440, "test tone frequency")
	cmd.Flags().String("static", "", "directory served on /")
	cmd.Flags().Bool("mdns", true, "advertise over mDNS")
	cmd.Flags().Int("frame-ms", 10, "encoded frame duration in milliseconds")
	cmd.Flags().Int("bitrate", 0, "opus bitrate in bits per second (0 = codec default)")
	cmd.Flags().Bool("no-tui", false, "disable the TUI and stream logs to stdout")

	bindings = append(bindings,
		flagBinding{"relay.listen", "listen"},
		flagBinding{"relay.name", "name"},
		flagBinding{"relay.source", "source"},
		flagBinding{"relay.file", "file"},
		flagBinding{"relay.tone_hz", "tone-hz"},
		flagBinding{"relay.static_dir", "static"},
		flagBinding{"relay.mdns", "mdns"},
		flagBinding{"codec.frame_duration_ms", "frame-ms"},
		flagBinding{"codec.bitrate", "bitrate"},
	)
	cobra.CheckErr(bindFlags(cmd, v, bindings))

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if noTUI, _ := cmd.Flags().GetBool("no-tui"); noTUI {
			v.Set("tui.enabled", false)
		}
	}

	cmd.AddCommand(newVersionCommand("wsaudio-relay"))
	return cmd
}

func relayStatus(cfg *config.Config, srv *relay.Server) ui.RelayStatus {
	info := srv.StreamInfo()
	status := ui.RelayStatus{
		Name:   cfg.Relay.Name,
		Listen: cfg.Relay.Listen,
		Stream: info.Name,
		Format: info.Format().String(),
		Chunks: srv.ChunksSent(),
	}
	for _, c := range srv.Clients() {
		status.Clients = append(status.Clients, ui.RelayClient{Name: c.Name, ID: c.ID, Remote: c.Remote})
	}
	return status
}

// refreshRelayTUI pushes a status snapshot every second until ctx is done
func refreshRelayTUI(ctx context.Context, tui *ui.RelayTUI, cfg *config.Config, srv *relay.Server) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tui.Update(relayStatus(cfg, srv))
		}
	}
}
