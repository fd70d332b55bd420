package main

import (
	"fmt"

	"github.com/gogotex/docflow/internal/render"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <docId>",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		d, err := c.GetDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, render.Header(d, false))
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprintln(out)
			fmt.Fprintln(out, d.Body)
			return nil
		}
		if d.Body != "" {
			body, err := render.Markdown(d.Body)
			if err != nil {
				return err
			}
			fmt.Fprint(out, body)
		}
		return nil
	},
}

var revisionsCmd = &cobra.Command{
	Use:   "revisions <docId>",
	Short: "List a document's revision history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		d, err := c.GetDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		revs, err := c.ListRevisions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), render.Header(d, false))
		fmt.Fprintln(cmd.OutOrStdout(), render.RevisionTable(revs))
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("raw", false, "print the body without markdown rendering")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(revisionsCmd)
}
