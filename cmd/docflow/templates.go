package main

import (
	"fmt"

	"github.com/gogotex/docflow/internal/app"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/internal/templates"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage document templates",
}

var templatesImportCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import markdown templates with YAML frontmatter",
	Long: `Import every *.md file in dir as a published template. The frontmatter
must carry a title and may name a project.

With --author the templates are written straight to the configured store on
behalf of that user; otherwise they are created through the API.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Workflow.TemplatesDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no template directory: pass one or set DOCFLOW_WORKFLOW_TEMPLATES_DIR")
		}
		project, _ := cmd.Flags().GetString("project")
		author, _ := cmd.Flags().GetString("author")

		ts, err := templates.Load(dir)
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No templates in %s\n", dir)
			return nil
		}

		ctx := cmd.Context()
		var creator templates.Creator
		if author != "" {
			a, err := app.New(ctx, cfg, app.Headless())
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			ctx = identity.WithActor(ctx, identity.Actor{ID: author})
			creator = a.Engine
		} else {
			c, err := apiClient()
			if err != nil {
				return err
			}
			creator = c
		}

		docs, err := templates.Import(ctx, creator, ts, project)
		for _, d := range docs {
			fmt.Fprintf(cmd.OutOrStdout(), "Imported template %s (%s)\n", d.Title, d.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d templates\n", len(docs))
		return nil
	},
}

func init() {
	templatesImportCmd.Flags().StringP("project", "p", "", "project for templates whose frontmatter names none")
	templatesImportCmd.Flags().String("author", "", "write directly to the store as this user")
	templatesCmd.AddCommand(templatesImportCmd)
	rootCmd.AddCommand(templatesCmd)
}
