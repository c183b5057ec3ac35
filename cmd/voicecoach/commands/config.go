package commands

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Context configuration management",
	Long: `Manage named contexts: which coach server to talk to and which AI
credentials the serve command runs with.

Examples:
  voicecoach config add local --server-url http://localhost:8000
  voicecoach config use local
  voicecoach config set gemini_api_key AI...
  voicecoach config list`,
}

var configAddServerURL string

var configAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a new context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := args[0]
		if _, ok := cfg.Contexts[name]; ok {
			return fmt.Errorf("context %q already exists", name)
		}
		if err := cfg.AddContext(name, &cli.Context{ServerURL: configAddServerURL}); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(name); err != nil {
				return err
			}
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": name, "status": "created"})
		}
		fmt.Printf("Context %q created.\n", name)
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": args[0], "status": "active"})
		}
		fmt.Printf("Switched to context %q.\n", args[0])
		return nil
	},
}

var configCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			return fmt.Errorf("no current context set")
		}
		if jsonOutput {
			return printJSON(map[string]any{"current": cfg.CurrentContext})
		}
		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		sort.Strings(names)
		if jsonOutput {
			return printJSON(map[string]any{"contexts": names, "current": cfg.CurrentContext})
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSERVER\tCURRENT")
		for _, name := range names {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, ctx.ServerURL, current)
		}
		return w.Flush()
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"name": args[0], "status": "deleted"})
		}
		fmt.Printf("Context %q deleted.\n", args[0])
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a field on the selected context",
	Long: `Set a configuration field on the selected context.

Keys:
  server_url, ws_base_url, gemini_api_key, gemini_model,
  openai_api_key, voice, data_dir, timeout

Unknown keys are stored in the context's extra map.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := contextName
		if name == "" {
			name = cfg.CurrentContext
		}
		if name == "" {
			return fmt.Errorf("no context selected; run 'voicecoach config add' first")
		}
		ctx, err := cfg.GetContext(name)
		if err != nil {
			return err
		}

		key, value := args[0], args[1]
		switch key {
		case "server_url":
			ctx.ServerURL = value
		case "ws_base_url":
			ctx.WSBaseURL = value
		case "gemini_api_key":
			ctx.GeminiAPIKey = value
		case "gemini_model":
			ctx.GeminiModel = value
		case "openai_api_key":
			ctx.OpenAIAPIKey = value
		case "voice":
			ctx.Voice = value
		case "data_dir":
			ctx.DataDir = value
		case "timeout":
			t, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("timeout must be an integer: %w", err)
			}
			ctx.Timeout = t
		default:
			ctx.SetExtra(key, value)
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"context": name, "key": key, "status": "set"})
		}
		fmt.Printf("Set %s on context %q.\n", key, name)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context with masked credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		ctx, err := cfg.ResolveContext(name)
		if err != nil {
			return err
		}
		shown := *ctx
		shown.GeminiAPIKey = cli.MaskAPIKey(shown.GeminiAPIKey)
		shown.OpenAIAPIKey = cli.MaskAPIKey(shown.OpenAIAPIKey)
		return printResult(shown)
	},
}

func init() {
	configAddCmd.Flags().StringVar(&configAddServerURL, "server-url", "http://localhost:8000", "coach server base URL")
	configCmd.AddCommand(configAddCmd, configUseCmd, configCurrentCmd, configListCmd, configDeleteCmd, configSetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
