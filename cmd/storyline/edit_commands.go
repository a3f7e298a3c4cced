package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/session"
	"github.com/dshills/storyline/internal/store"
)

// withProjectSession loads a project, runs fn against its session and
// saves the result.
func (c *commandContext) withProjectSession(cmd *cobra.Command, id string, fn func(*session.Session) error) error {
	return c.withStore(func(st *store.Store) error {
		p, err := st.Load(cmd.Context(), id)
		if err != nil {
			return err
		}
		sess, err := c.openSession(cmd.Context(), p)
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := fn(sess); err != nil {
			return err
		}
		return saveSession(cmd.Context(), st, p, sess)
	})
}

func newFormatCommand(ctx *commandContext) *cobra.Command {
	var level int

	cmd := &cobra.Command{
		Use:   "format <project-id> <kind> <start> <end>",
		Short: "Toggle formatting over a character range",
		Long: "Toggle formatting over [start, end). Kinds are bold, italic, underline,\n" +
			"heading and quote. Applying a kind that already covers the range removes it.",
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := format.ParseKind(args[1])
			if err != nil {
				return err
			}
			start, err := parseOffset("start", args[2])
			if err != nil {
				return err
			}
			end, err := parseOffset("end", args[3])
			if err != nil {
				return err
			}

			return ctx.withProjectSession(cmd, args[0], func(sess *session.Session) error {
				id, err := sess.ToggleFormat(cmd.Context(), start, end, kind, level)
				if err != nil {
					return err
				}
				if id == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from [%d:%d)\n", kind, start, end)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s as %s\n", kind, id)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&level, "level", format.MinHeadingLevel, "Heading level (heading only)")
	return cmd
}

func newCommentCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Manage comments",
	}
	cmd.AddCommand(newCommentAddCommand(ctx))
	cmd.AddCommand(newCommentResolveCommand(ctx))
	cmd.AddCommand(newCommentRemoveCommand(ctx))
	return cmd
}

func newCommentAddCommand(ctx *commandContext) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "add <project-id> <position> <text>...",
		Short: "Anchor a comment at a character position",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseOffset("position", args[1])
			if err != nil {
				return err
			}
			body := strings.Join(args[2:], " ")

			return ctx.withProjectSession(cmd, args[0], func(sess *session.Session) error {
				id, err := sess.AddComment(cmd.Context(), pos, body, author)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added comment %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "Comment author")
	return cmd
}

func newCommentResolveCommand(ctx *commandContext) *cobra.Command {
	var reopen bool

	cmd := &cobra.Command{
		Use:   "resolve <project-id> <comment-id>",
		Short: "Mark a comment resolved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProjectSession(cmd, args[0], func(sess *session.Session) error {
				ok, err := sess.ResolveComment(cmd.Context(), args[1], !reopen)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("comment %s not found", args[1])
				}
				state := "resolved"
				if reopen {
					state = "reopened"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Comment %s %s\n", args[1], state)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reopen, "reopen", false, "Clear the resolved flag instead")
	return cmd
}

func newCommentRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <project-id> <comment-id>",
		Short: "Remove a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProjectSession(cmd, args[0], func(sess *session.Session) error {
				if err := sess.RemoveComment(cmd.Context(), args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed comment %s\n", args[1])
				return nil
			})
		},
	}
}

func parseOffset(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, s)
	}
	return n, nil
}
