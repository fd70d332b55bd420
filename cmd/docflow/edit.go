package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gogotex/docflow/internal/document/optimistic"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/render"
	"github.com/spf13/cobra"
)

var editCmd = &cobra.Command{
	Use:   "edit <docId>",
	Short: "Update a document's title or body",
	Long: `Update a document's title or body. The local view is shown as soon as the
edit is applied and is rolled back if the server refuses it.

--body-file - reads the body from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := apiClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		coord := optimistic.New(c, nil)
		u, err := coord.ApplyOptimistic(ctx, args[0], p)
		if err != nil {
			return err
		}
		fmt.Fprint(out, render.Header(u.Optimistic, true))

		d, err := u.Wait(ctx)
		if err != nil {
			if cur, gerr := coord.Get(ctx, args[0]); gerr == nil {
				fmt.Fprintln(out, "Rolled back:")
				fmt.Fprint(out, render.Header(cur, false))
			}
			return err
		}
		fmt.Fprintln(out, "Saved:")
		fmt.Fprint(out, render.Header(d, false))
		return nil
	},
}

func patchFromFlags(cmd *cobra.Command) (workflow.ContentPatch, error) {
	var p workflow.ContentPatch
	f := cmd.Flags()
	if f.Changed("title") {
		title, _ := f.GetString("title")
		p.Title = &title
	}
	if f.Changed("body-file") {
		path, _ := f.GetString("body-file")
		var (
			b   []byte
			err error
		)
		if path == "-" {
			b, err = io.ReadAll(cmd.InOrStdin())
		} else {
			b, err = os.ReadFile(path)
		}
		if err != nil {
			return p, fmt.Errorf("reading body: %w", err)
		}
		body := string(b)
		p.Body = &body
	}
	p.ResubmitForReview, _ = f.GetBool("resubmit")
	p.Summary, _ = f.GetString("summary")
	p.ExpectedVersion, _ = f.GetInt("expected-version")
	if p.Title == nil && p.Body == nil && !p.ResubmitForReview {
		return p, errors.New("nothing to change: pass --title, --body-file or --resubmit")
	}
	return p, nil
}

func init() {
	editCmd.Flags().String("title", "", "new title")
	editCmd.Flags().String("body-file", "", "file holding the new body, - for stdin")
	editCmd.Flags().Bool("resubmit", false, "send the document back to its reviewers")
	editCmd.Flags().String("summary", "", "change summary stored with the revision")
	editCmd.Flags().Int("expected-version", 0, "fail unless the document is at this version")
	rootCmd.AddCommand(editCmd)
}
