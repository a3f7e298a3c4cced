package main

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/storyline/internal/format"
	"github.com/dshills/storyline/internal/importer"
	"github.com/dshills/storyline/internal/renderer"
	"github.com/dshills/storyline/internal/store"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var title string
	var id string

	cmd := &cobra.Command{
		Use:   "import <file.xhtml>",
		Short: "Import an XHTML manuscript as a project",
		Long: "Import an XHTML manuscript. With --id naming an existing project the\n" +
			"formatting is merged into it; formatting already present is kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := importer.Parse(f)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			return ctx.withStore(func(st *store.Store) error {
				p := &store.Project{ID: id, Title: doc.Title, Text: doc.Text}
				if id != "" {
					existing, err := st.Load(cmd.Context(), id)
					switch {
					case err == nil:
						p = existing
					case !errors.Is(err, store.ErrNotFound):
						return err
					}
				}
				if title != "" {
					p.Title = title
				}
				if p.Title == "" {
					p.Title = "Untitled"
				}

				sess, err := ctx.openSession(cmd.Context(), p)
				if err != nil {
					return err
				}
				defer sess.Close()

				if sess.Text() != doc.Text {
					if _, err := sess.Load(cmd.Context(), doc.Text); err != nil {
						return err
					}
				}
				rep, err := sess.ImportRecords(cmd.Context(), doc.Records)
				if err != nil {
					return err
				}
				if err := saveSession(cmd.Context(), st, p, sess); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s): %d applied, %d skipped\n",
					p.ID, p.Title, rep.Applied, rep.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Project title (defaults to the document title)")
	cmd.Flags().StringVar(&id, "id", "", "Project ID to create or merge into")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				projects, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, []string{p.ID, p.Title, p.UpdatedAt.Local().Format(time.DateTime)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"ID", "Title", "Updated"}, rows, nil))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project's formatting and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				p, err := st.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sess, err := ctx.openSession(cmd.Context(), p)
				if err != nil {
					return err
				}
				defer sess.Close()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project:    %s\n", p.ID)
				fmt.Fprintf(out, "Title:      %s\n", p.Title)
				fmt.Fprintf(out, "Characters: %d\n", sess.Len())
				fmt.Fprintf(out, "Payload:    %s\n", valueOr(p.PayloadVersion, "none"))
				fmt.Fprintf(out, "Updated:    %s\n", p.UpdatedAt.Local().Format(time.DateTime))

				txt := []rune(sess.Text())
				if ranges := sess.Ranges(); len(ranges) > 0 {
					rows := make([][]string, 0, len(ranges))
					for _, r := range ranges {
						level := ""
						if r.Kind == format.KindHeading {
							level = strconv.Itoa(r.Level)
						}
						rows = append(rows, []string{
							r.ID, r.Kind.String(), level,
							strconv.Itoa(r.Start), strconv.Itoa(r.End),
							excerpt(txt, r.Start, r.End),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(out,
						[]string{"ID", "Kind", "Level", "Start", "End", "Text"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}))
				}

				if comments := sess.Comments(); len(comments) > 0 {
					rows := make([][]string, 0, len(comments))
					for _, c := range comments {
						rows = append(rows, []string{
							c.ID, strconv.Itoa(c.Position), c.Author, yesNo(c.Resolved), c.Text,
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(out,
						[]string{"ID", "Position", "Author", "Resolved", "Comment"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export a project as XHTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				p, err := st.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sess, err := ctx.openSession(cmd.Context(), p)
				if err != nil {
					return err
				}
				defer sess.Close()

				var buf bytes.Buffer
				writeXHTML(&buf, p.Title, renderer.Markup(sess.Surface().Root()))

				if output == "" || output == "-" {
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
				if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", p.ID, output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a stored project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				if err := st.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storyline %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// writeXHTML wraps body markup in a standalone document. Line breaks in
// the text become <br/> so the importer reads them back.
func writeXHTML(w io.Writer, title, body string) {
	var esc strings.Builder
	_ = xml.EscapeText(&esc, []byte(title))

	fmt.Fprintln(w, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintln(w, `<html xmlns="http://www.w3.org/1999/xhtml">`)
	fmt.Fprintf(w, "<head><title>%s</title></head>\n", esc.String())
	fmt.Fprintf(w, "<body>%s</body>\n", strings.ReplaceAll(body, "&#xA;", "<br/>"))
	fmt.Fprintln(w, `</html>`)
}

const excerptWidth = 32

func excerpt(txt []rune, start, end int) string {
	start = min(max(start, 0), len(txt))
	end = min(max(end, start), len(txt))
	s := strings.ReplaceAll(string(txt[start:end]), "\n", "⏎")
	if r := []rune(s); len(r) > excerptWidth {
		s = string(r[:excerptWidth-1]) + "…"
	}
	return s
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
