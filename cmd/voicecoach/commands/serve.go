package commands

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/blob"
	"github.com/mindloop/voicecoach/pkg/cli"
	"github.com/mindloop/voicecoach/pkg/coachd"
	"github.com/mindloop/voicecoach/pkg/kv"
)

var (
	serveAddr        string
	serveDataDir     string
	serveClipCache   string
	serveScripted    bool
	serveEventBuffer int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coach server",
	Long: `Run the wellness coach reference server: session REST API, one
realtime WebSocket per session, and the admin cognition stream.

Without AI credentials in the context (or with --scripted) the server
runs the deterministic scripted coach, which needs no network access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := resolveContext()
		if err != nil {
			return err
		}
		logger := newLogger()

		dataDir := serveDataDir
		if dataDir == "" {
			dataDir = ctx.DataDir
		}
		var store kv.Store
		if dataDir != "" {
			store, err = kv.NewBadger(kv.BadgerOptions{Dir: dataDir})
			if err != nil {
				return err
			}
			logger.Info("using badger store", "dir", dataDir)
		} else {
			store = kv.NewMemory()
			logger.Info("using in-memory store")
		}
		defer store.Close()

		opts := coachd.Options{
			Store:       store,
			Logger:      logger,
			EventBuffer: serveEventBuffer,
		}

		if !serveScripted && ctx.GeminiAPIKey != "" {
			ai, err := coachd.NewGeminiAI(cmd.Context(), ctx.GeminiAPIKey, ctx.GeminiModel, logger)
			if err != nil {
				return err
			}
			opts.Analyzer = ai
			opts.Responder = ai
			logger.Info("gemini coach enabled")
		} else {
			logger.Info("scripted coach enabled")
		}

		if !serveScripted && ctx.OpenAIAPIKey != "" {
			var synth coachd.Synthesizer = coachd.NewOpenAISynthesizer(ctx.OpenAIAPIKey, ctx.Voice, logger)
			clipCache := serveClipCache
			if clipCache == "" {
				if paths, err := cli.NewPaths(appName); err == nil && paths.EnsureCacheDir() == nil {
					clipCache = paths.CachePath("clips")
				}
			}
			if clipCache != "" {
				cache, err := blob.NewLocal(clipCache)
				if err != nil {
					return err
				}
				synth = &coachd.CachedSynthesizer{Inner: synth, Store: cache}
				logger.Info("clip cache enabled", "dir", clipCache)
			}
			opts.Synthesizer = synth
			logger.Info("speech synthesis enabled")
		}

		srv := coachd.NewServer(opts)
		logger.Info("listening", "addr", serveAddr)
		return http.ListenAndServe(serveAddr, srv.Handler())
	},
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "badger data directory (default: context data_dir, else in-memory)")
	serveCmd.Flags().StringVar(&serveClipCache, "clip-cache", "", "directory for caching synthesized audio clips (default ~/.voicecoach/voicecoach/cache/clips)")
	serveCmd.Flags().BoolVar(&serveScripted, "scripted", false, "force the scripted coach even when credentials are configured")
	serveCmd.Flags().IntVar(&serveEventBuffer, "event-buffer", 0, "admin event ring size (default 500)")
	rootCmd.AddCommand(serveCmd)
}
