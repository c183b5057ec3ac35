package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/cli"
	"github.com/mindloop/voicecoach/pkg/coach"
)

const appName = "voicecoach"

var (
	verbose     bool
	configPath  string
	contextName string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "voicecoach",
	Short: "Client and server CLI for the voice wellness coach",
	Long: `voicecoach is realtime voice wellness coaching from the terminal.

Commands:
  serve     Run the coach server (REST + WebSocket)
  session   Create, run, inspect, and end coaching sessions
  admin     Observe the AI's cognition event stream
  config    Context configuration management
  version   Version information

Examples:
  voicecoach config add local --server-url http://localhost:8000
  voicecoach config use local
  voicecoach serve --addr :8000 --data-dir /var/lib/voicecoach
  voicecoach session run
  voicecoach admin events --follow --jq '.event_type'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.voicecoach/voicecoach/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&contextName, "context", "", "context to use (default: current context)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
}

func loadConfig() (*cli.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("VOICECOACH_CONFIG")
	}
	return cli.LoadConfigWithPath(appName, path)
}

// resolveContext returns the selected context, or an empty default one
// when no context has been configured yet.
func resolveContext() (*cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName != "" {
			return nil, err
		}
		return &cli.Context{}, nil
	}
	return ctx, nil
}

func newCoachClient() (*coach.Client, error) {
	ctx, err := resolveContext()
	if err != nil {
		return nil, err
	}
	var opts []coach.Option
	if ctx.ServerURL != "" {
		opts = append(opts, coach.WithBaseURL(ctx.ServerURL))
	}
	if ctx.WSBaseURL != "" {
		opts = append(opts, coach.WithWSBaseURL(ctx.WSBaseURL))
	}
	return coach.NewClient(opts...), nil
}

func printResult(v any) error {
	if jsonOutput {
		return printJSON(v)
	}
	return cli.Output(v, cli.OutputOptions{Format: cli.FormatYAML})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
