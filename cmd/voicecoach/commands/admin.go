package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/cli"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect server state and cognition events",
}

var adminSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List all sessions on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}
		sessions, err := client.AdminSessions(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(sessions)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTATUS\tTURNS\tCREATED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.SessionID, s.Status, s.TurnCount, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var (
	adminLimit  int
	adminFollow bool
	adminJQ     string
)

var adminEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show cognition events from the server",
	Long: `Show the server's recent cognition events: emotion analysis,
technique selection, memory updates, and safety triggers, one JSON
object per line.

With --follow, the recent events are followed by a live stream over
the admin WebSocket until interrupted. With --jq, each event is run
through a jq expression; events the filter drops produce no output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}

		var filter *cli.JQFilter
		if adminJQ != "" {
			filter, err = cli.CompileJQ(adminJQ)
			if err != nil {
				return err
			}
		}

		if adminFollow {
			return followEvents(cmd, client.AdminStreamURL(), filter)
		}

		events, err := client.AdminEvents(cmd.Context(), adminLimit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := printEvent(ev, filter); err != nil {
				return err
			}
		}
		return nil
	},
}

func followEvents(cmd *cobra.Command, url string, filter *cli.JQFilter) error {
	printVerbose("dialing %s", url)
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), url, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := printEvent(data, filter); err != nil {
			return err
		}
	}
}

// printEvent emits one event as a JSON line, optionally through the jq
// filter. A filter that emits nothing drops the event.
func printEvent(raw json.RawMessage, filter *cli.JQFilter) error {
	if filter == nil {
		fmt.Println(string(raw))
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	results, err := filter.Apply(v)
	if err != nil {
		return err
	}
	for _, res := range results {
		out, err := json.Marshal(res)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

func init() {
	adminEventsCmd.Flags().IntVar(&adminLimit, "limit", 50, "number of recent events to fetch")
	adminEventsCmd.Flags().BoolVarP(&adminFollow, "follow", "f", false, "stream live events after the replay")
	adminEventsCmd.Flags().StringVar(&adminJQ, "jq", "", "jq expression applied to each event")
	adminCmd.AddCommand(adminSessionsCmd, adminEventsCmd)
	rootCmd.AddCommand(adminCmd)
}
