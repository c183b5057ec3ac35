package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/cli"
)

var (
	watchWidth  int
	watchHeight int
)

var adminWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the cognition event stream",
	Long: `Render a live terminal dashboard over the admin WebSocket: the
cognition event feed in one pane, safety events in another. Interrupt
to exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}

		url := client.AdminStreamURL()
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

		w := &watcher{
			feed:   cli.NewLogWriter(256),
			safety: cli.NewLogWriter(64),
			start:  time.Now(),
		}
		readErr := make(chan error, 1)
		go func() { readErr <- w.consume(conn) }()

		frame := cli.Frame{
			Styles: cli.NewStyles(cli.DefaultTheme),
			Title:  "voicecoach",
			Sections: []cli.Section{
				{Label: "🧠 Cognition", Content: w.feed.Lines},
				{Label: "🚨 Safety", Content: w.safety.Lines},
			},
			Help: "ctrl-c to quit",
		}

		fmt.Print("\x1b[?25l")       // hide cursor
		defer fmt.Print("\x1b[?25h") // restore

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			frame.Status = w.status()
			fmt.Print("\x1b[2J\x1b[H" + frame.Render(watchWidth, watchHeight))
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case err := <-readErr:
				fmt.Println()
				if ctx.Err() != nil {
					return nil
				}
				return err
			case <-ticker.C:
			}
		}
	},
}

type watcher struct {
	feed   *cli.LogWriter
	safety *cli.LogWriter
	start  time.Time
	events atomic.Int64
	bytes  atomic.Int64
}

func (w *watcher) consume(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.events.Add(1)
		w.bytes.Add(int64(len(data)))

		var ev struct {
			EventType  string `json:"event_type"`
			SessionID  string `json:"session_id"`
			TurnNumber int    `json:"turn_number"`
			Reason     string `json:"reason"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		line := fmt.Sprintf("%s %-28s %s turn %d",
			time.Now().Format("15:04:05"), ev.EventType, ev.SessionID, ev.TurnNumber)
		if ev.Reason != "" {
			line += " (" + ev.Reason + ")"
		}
		fmt.Fprintln(w.feed, line)
		if strings.HasPrefix(ev.EventType, "safety.") {
			fmt.Fprintln(w.safety, line)
		}
	}
}

func (w *watcher) status() string {
	return fmt.Sprintf("%d events · %s · up %s",
		w.events.Load(),
		cli.FormatBytesInt(int(w.bytes.Load())),
		cli.FormatDuration(int(time.Since(w.start).Milliseconds())))
}

func init() {
	adminWatchCmd.Flags().IntVar(&watchWidth, "width", 100, "dashboard width in columns")
	adminWatchCmd.Flags().IntVar(&watchHeight, "height", 30, "dashboard height in rows")
	adminCmd.AddCommand(adminWatchCmd)
}
