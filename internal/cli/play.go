package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"mln131-quiz/internal/client"
	"mln131-quiz/internal/config"
	"mln131-quiz/internal/domain"
	"mln131-quiz/internal/session"
	"github.com/spf13/cobra"
)

const playHelp = `commands:
  1-4                 answer the current question
  use KIND [PLAYER]   use an item (debuffs need a target name)
  inv                 show your items
  board               show the leaderboard
  time                show the countdown
  quit                leave the room`

// NewPlayCmd joins a room from the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var code, name string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a room and play from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()
			if !b.durable {
				return errors.New("play needs a shared postgres store to find rooms created by the host")
			}

			s, err := client.Join(ctx, b.gw, code, name, client.Options{
				QuestionLimit: cfg.Quiz.QuestionCount,
				Countdown:     session.Config{BaseDuration: cfg.QuestionDuration(session.DefaultBaseDuration)},
				PollInterval:  config.TTLDuration(cfg.Quiz.PollInterval, 0),
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			return play(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "room code to join")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func play(ctx context.Context, s *client.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(out, "joined %s as %s, waiting for the host\n%s\n", s.Room().Code, s.Player().Name, playHelp)
	notes := s.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			render(out, s, n)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := command(ctx, s, line, out); quit {
				return nil
			}
		}
	}
}

func command(ctx context.Context, s *client.Session, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(out, playHelp)
	case "inv":
		inv := s.Inventory()
		for _, k := range domain.ItemKinds {
			fmt.Fprintf(out, "  %-12s %d\n", k, inv.Count(k))
		}
	case "board":
		for _, st := range s.Leaderboard() {
			marker := " "
			if st.Player.ID == s.Player().ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %2d. %-16s %d\n", marker, st.Rank, st.Player.Name, st.Player.Score)
		}
	case "time":
		state := s.Countdown()
		if !state.Active {
			fmt.Fprintln(out, "no question running")
			return false
		}
		fmt.Fprintf(out, "question %d: %ds left (%s)\n", state.QuestionIndex+1, state.Remaining, state.Submission)
	case "use":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: use KIND [PLAYER]")
			return false
		}
		kind, err := domain.ParseItemKind(fields[1])
		if err != nil {
			fmt.Fprintln(out, err)
			return false
		}
		target := strings.Join(fields[2:], " ")
		if _, err := s.UseItem(ctx, kind, target); err != nil {
			fmt.Fprintf(out, "cannot use %s: %v\n", kind, err)
		}
	default:
		option, err := strconv.Atoi(fields[0])
		if err != nil || option < 1 || option > domain.OptionCount {
			fmt.Fprintf(out, "unknown command %q, try help\n", line)
			return false
		}
		if _, err := s.Answer(ctx, option-1); err != nil {
			fmt.Fprintf(out, "answer rejected: %v\n", err)
		}
	}
	return false
}

func render(out io.Writer, s *client.Session, n client.Notification) {
	switch n.Kind {
	case client.NoteQuestion:
		q := n.Question.Content
		fmt.Fprintf(out, "\nQuestion %d [%s]\n%s\n", n.Room.CurrentQuestionIndex+1, q.Difficulty, q.Question)
		confused := s.Countdown().Confused
		for i, opt := range q.Options {
			if confused {
				opt = scramble(opt)
			}
			fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
		}
	case client.NoteAnswered:
		r := n.Result
		switch {
		case r.Selected < 0:
			fmt.Fprintln(out, "time is up")
		case r.IsCorrect:
			fmt.Fprintf(out, "correct! +%d points (score %d)\n", r.Points, r.Outcome.NewScore)
		default:
			fmt.Fprintf(out, "wrong answer (score %d)\n", r.Outcome.NewScore)
		}
	case client.NoteReward:
		fmt.Fprintf(out, "you received a %s\n", n.Item)
	case client.NoteItemUsed:
		fmt.Fprintf(out, "used %s%s\n", n.Item, onTarget(s, n.Player))
	case client.NoteItemReceived:
		fmt.Fprintf(out, "%s hit you with %s\n", playerName(s, n.Player), n.Item)
	case client.NoteBlocked:
		fmt.Fprintf(out, "your shield blocked %s from %s\n", n.Item, playerName(s, n.Player))
	case client.NoteFinished:
		fmt.Fprintf(out, "\ngame over, you finished #%d\n", s.Rank())
	case client.NoteError:
		fmt.Fprintf(out, "error: %v\n", n.Err)
	}
}

func onTarget(s *client.Session, playerID string) string {
	if playerID == "" {
		return ""
	}
	return " on " + playerName(s, playerID)
}

func playerName(s *client.Session, playerID string) string {
	for _, st := range s.Leaderboard() {
		if st.Player.ID == playerID {
			return st.Player.Name
		}
	}
	return "someone"
}

// scramble reverses the words of an option while confusion is active.
func scramble(text string) string {
	words := strings.Fields(text)
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return strings.Join(words, " ")
}
