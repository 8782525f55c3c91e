package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"mln131-quiz/internal/config"
	"mln131-quiz/internal/domain"
	"github.com/spf13/cobra"
)

// NewAdminCmd groups the room and question-bank management commands. They talk to the
// configured stores directly, so they only reach a running server through Postgres and Redis.
func NewAdminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage rooms and the question bank",
	}
	cmd.AddCommand(newRoomsCmd(configPath), newQuestionsCmd(configPath))
	return cmd
}

// withBackend loads config, opens the stores and runs fn against them.
func withBackend(cmd *cobra.Command, configPath string, fn func(context.Context, *backend) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if !b.durable {
		logger.Warn("no postgres configured; changes only live for this command")
	}
	return fn(ctx, b)
}

func newRoomsCmd(configPath *string) *cobra.Command {
	var watch bool
	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "List rooms, or follow room changes with --watch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, *configPath, func(ctx context.Context, b *backend) error {
				list, err := b.admin.ListRooms(ctx)
				if err != nil {
					return err
				}
				printRooms(cmd.OutOrStdout(), list)
				if !watch {
					return nil
				}
				return watchRooms(ctx, b, cmd.OutOrStdout())
			})
		},
	}
	rooms.Flags().BoolVar(&watch, "watch", false, "keep running and print room changes as they happen")

	roomCmd := func(use, short string, run func(context.Context, *backend, string) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withBackend(cmd, *configPath, func(ctx context.Context, b *backend) error {
					msg, err := run(ctx, b, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				})
			},
		}
	}

	rooms.AddCommand(
		roomCmd("create CODE", "Create a waiting room", func(ctx context.Context, b *backend, code string) (string, error) {
			room, err := b.admin.CreateRoom(ctx, code)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("created room %s (%s)", room.Code, room.ID), nil
		}),
		roomCmd("start ROOM_ID", "Start a waiting room", func(ctx context.Context, b *backend, id string) (string, error) {
			return "started " + id, b.admin.StartRoom(ctx, id)
		}),
		roomCmd("next ROOM_ID", "Advance a playing room to its next question", func(ctx context.Context, b *backend, id string) (string, error) {
			index, err := b.admin.NextQuestion(ctx, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("room %s on question %d", id, index+1), nil
		}),
		roomCmd("end ROOM_ID", "Finish a room", func(ctx context.Context, b *backend, id string) (string, error) {
			return "finished " + id, b.admin.EndRoom(ctx, id)
		}),
		roomCmd("delete ROOM_ID", "Delete a room with its players and logs", func(ctx context.Context, b *backend, id string) (string, error) {
			return "deleted " + id, b.admin.DeleteRoom(ctx, id)
		}),
	)
	return rooms
}

func watchRooms(ctx context.Context, b *backend, out io.Writer) error {
	if !b.shared {
		return fmt.Errorf("watching rooms needs redis to share changes across processes")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes := make(chan domain.RoomChange, 16)
	sub, err := b.gw.SubscribeToAllRooms(ctx, func(change domain.RoomChange) {
		select {
		case changes <- change:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-changes:
			fmt.Fprintf(out, "%s %-6s %s %s question=%d\n",
				time.Now().Format(time.TimeOnly), change.Type, change.Room.Code, change.Room.Status, change.Room.CurrentQuestionIndex+1)
		}
	}
}

func printRooms(out io.Writer, rooms []domain.Room) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tSTATUS\tQUESTION\tCREATED")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Code, r.Status, r.CurrentQuestionIndex+1, r.CreatedAt.Format(time.DateTime))
	}
	_ = tw.Flush()
}

func newQuestionsCmd(configPath *string) *cobra.Command {
	questions := &cobra.Command{
		Use:   "questions",
		Short: "List the question bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, *configPath, func(ctx context.Context, b *backend) error {
				list, err := b.admin.ListQuestions(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDIFFICULTY\tANSWER\tQUESTION")
				for _, q := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", q.ID, q.Content.Difficulty, q.Content.CorrectIndex+1, q.Content.Question)
				}
				return tw.Flush()
			})
		},
	}
	questions.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import questions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withBackend(cmd, *configPath, func(ctx context.Context, b *backend) error {
				n, err := b.admin.ImportQuestions(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions\n", n)
				return nil
			})
		},
	})
	return questions
}
