package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindloop/voicecoach/pkg/cli"
	"github.com/mindloop/voicecoach/pkg/coach"
	"github.com/mindloop/voicecoach/pkg/session"
	"github.com/mindloop/voicecoach/pkg/speech"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, run, inspect, and end coaching sessions",
}

var (
	sessionNote    string
	sessionReqFile string
)

// createRequest is the request-file shape for session create.
type createRequest struct {
	Context string `json:"context" yaml:"context"`
}

func resolveNote() (string, error) {
	if sessionReqFile == "" {
		return sessionNote, nil
	}
	var req createRequest
	if sessionReqFile == "-" {
		if err := cli.LoadRequestFromStdin(&req); err != nil {
			return "", err
		}
	} else if err := cli.LoadRequest(sessionReqFile, &req); err != nil {
		return "", err
	}
	return req.Context, nil
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}
		note, err := resolveNote()
		if err != nil {
			return err
		}
		sess, err := client.CreateSession(cmd.Context(), note)
		if err != nil {
			return err
		}
		return printResult(sess)
	},
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}
		sess, err := client.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(sess)
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}
		if err := client.EndSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"session_id": args[0], "status": "ended"})
		}
		fmt.Printf("Session %s ended.\n", args[0])
		return nil
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show a session's transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}
		turns, err := client.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(map[string]any{"session_id": args[0], "turns": turns})
	},
}

var (
	sessionID     string
	sessionScript string
)

var sessionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a live coaching session in the terminal",
	Long: `Run a coaching session over the realtime channel. Each line you
type is sent as one spoken utterance; the coach's replies are printed
as they arrive.

Input commands:
  /done   report the suggested exercise as completed
  /end    end the session and print the summary (also Ctrl-D)

With --script, lines are read from a file instead of the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newCoachClient()
		if err != nil {
			return err
		}

		id := sessionID
		if id == "" {
			sess, err := client.CreateSession(cmd.Context(), sessionNote)
			if err != nil {
				return err
			}
			id = sess.SessionID
		}

		runner := &sessionRunner{
			styles: cli.NewStyles(cli.DefaultTheme),
			store:  session.NewStore(id),
			rec:    speech.NewScripted(nil, 300*time.Millisecond),
			player: speech.NewPlayer(speech.DiscardSink),
		}

		channel := client.Channel(id,
			coach.OnEvent(func(ev *coach.ServerEvent) { runner.ctrl.HandleEvent(ev) }),
			coach.OnState(func(s coach.ChannelState) { printVerbose("channel %s", s) }),
		)
		runner.ctrl = session.NewController(runner.store, channel, runner.rec, runner.player,
			session.WithSessionEnder(client),
			session.OnExercise(runner.showExercise),
		)
		runner.store.Subscribe(runner.render)

		if err := channel.Connect(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Connected to session %s. Type to talk, /end to finish.\n\n", id)

		input := os.Stdin
		if sessionScript != "" {
			f, err := os.Open(sessionScript)
			if err != nil {
				return err
			}
			defer f.Close()
			input = f
		}
		return runner.loop(cmd, input)
	},
}

// sessionRunner holds the live-session client state: the store, the
// controller driving it, and the render cursor over printed turns.
type sessionRunner struct {
	styles cli.Styles
	store  *session.Store
	rec    *speech.Scripted
	player *speech.Player
	ctrl   *session.Controller

	printed      int
	lastExercise *session.Exercise
	closureShown bool
}

func (r *sessionRunner) loop(cmd *cobra.Command, input *os.File) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/end":
			return r.finish(cmd)
		case line == "/done":
			if r.lastExercise == nil {
				fmt.Println(r.styles.Help.Render("no exercise in progress"))
				continue
			}
			r.ctrl.CompleteExercise(*r.lastExercise)
			r.lastExercise = nil
			r.waitIdle()
		default:
			r.say(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return r.finish(cmd)
}

func (r *sessionRunner) say(line string) {
	r.rec.Append(line)
	if err := r.ctrl.PressTalk(); err != nil {
		fmt.Println(r.styles.Help.Render("capture unavailable: " + err.Error()))
		return
	}
	r.ctrl.ReleaseTalk()
	r.waitIdle()
}

// waitIdle blocks until the talk turn has fully played out.
func (r *sessionRunner) waitIdle() {
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		a := r.store.Activity()
		if a == session.ActivityIdle {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	fmt.Println(r.styles.Help.Render("still waiting for the coach..."))
}

// render prints state changes: new turns, crisis resources, closure
// suggestions. Called from the store's notify goroutine.
func (r *sessionRunner) render(st session.State) {
	for ; r.printed < len(st.Turns); r.printed++ {
		turn := st.Turns[r.printed]
		switch turn.Role {
		case session.RoleUser:
			fmt.Println(r.styles.Help.Render("you: " + turn.Content))
		case session.RoleCoach:
			label := "coach"
			if turn.Emotion != "" {
				label = fmt.Sprintf("coach (%s, %s)", turn.Emotion, turn.Technique)
			}
			fmt.Println(r.styles.Label.Render(label+":") + " " + turn.Content)
		}
	}

	if st.Crisis && len(st.CrisisResources) > 0 {
		fmt.Println(r.styles.Title.Render("Support resources"))
		for _, res := range st.CrisisResources {
			line := "  " + res.Name
			if res.Phone != "" {
				line += " - " + res.Phone
			}
			if res.Text != "" {
				line += " - text " + res.Text
			}
			fmt.Println(line)
		}
	}

	if st.ClosureSuggested && !r.closureShown {
		r.closureShown = true
		fmt.Println(r.styles.Help.Render("the coach thinks this is a good place to wrap up; /end when ready"))
	}
}

func (r *sessionRunner) showExercise(ex session.Exercise) {
	r.lastExercise = &ex
	fmt.Println(r.styles.Title.Render(ex.Title))
	for i, step := range ex.Steps {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
	fmt.Println(r.styles.Help.Render("type /done when you have finished the exercise"))
}

func (r *sessionRunner) finish(cmd *cobra.Command) error {
	summary := r.ctrl.End()
	if err := r.ctrl.ConfirmEnd(cmd.Context()); err != nil {
		printVerbose("end session: %v", err)
	}
	fmt.Println()
	fmt.Println(r.styles.Title.Render("Session summary"))
	return printResult(summary)
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionNote, "note", "", "user context note for the session")
	sessionCreateCmd.Flags().StringVarP(&sessionReqFile, "request", "f", "", "YAML or JSON request file ('-' for stdin)")
	sessionRunCmd.Flags().StringVar(&sessionNote, "note", "", "user context note for the session")
	sessionRunCmd.Flags().StringVar(&sessionID, "session", "", "attach to an existing session instead of creating one")
	sessionRunCmd.Flags().StringVar(&sessionScript, "script", "", "file of utterances to replay, one per line")
	sessionCmd.AddCommand(sessionCreateCmd, sessionGetCmd, sessionEndCmd, sessionHistoryCmd, sessionRunCmd)
	rootCmd.AddCommand(sessionCmd)
}
