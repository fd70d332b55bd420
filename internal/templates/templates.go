// Package templates reads document templates written as markdown files with
// YAML frontmatter and imports them into the workflow.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Meta is the frontmatter of a template file.
type Meta struct {
	Title   string `yaml:"title"`
	Project string `yaml:"project,omitempty"`
}

// Template is one parsed file.
type Template struct {
	File string
	Meta
	Body string
}

// Parse reads YAML frontmatter and body from r into T.
func Parse[T any](r io.Reader) (T, string, error) {
	var meta T
	body, err := frontmatter.Parse(r, &meta)
	if err != nil {
		return meta, "", fmt.Errorf("parsing frontmatter: %w", err)
	}
	return meta, strings.TrimSpace(string(body)), nil
}

// Marshal serializes meta as YAML frontmatter followed by body.
func Marshal[T any](meta T, body string) ([]byte, error) {
	head, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n")
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// Load parses every *.md file in dir, sorted by name. Files without a title
// in their frontmatter are skipped.
func Load(dir string) ([]Template, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var out []Template
	for _, path := range matches {
		t, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if strings.TrimSpace(t.Title) == "" {
			logger.Warnf("skipping template %s: no title in frontmatter", path)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func loadFile(path string) (Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return Template{}, err
	}
	defer f.Close()
	meta, body, err := Parse[Meta](f)
	if err != nil {
		return Template{}, err
	}
	return Template{File: path, Meta: meta, Body: body}, nil
}

// Creator creates templates; the workflow engine and the API client both do.
type Creator interface {
	CreateTemplate(ctx context.Context, in workflow.NewDocument) (*document.Document, error)
}

// Import creates one template per entry. project applies to templates whose
// frontmatter names none. It stops at the first failure and returns what
// was created so far.
func Import(ctx context.Context, c Creator, ts []Template, project string) ([]*document.Document, error) {
	out := make([]*document.Document, 0, len(ts))
	for _, t := range ts {
		p := t.Project
		if p == "" {
			p = project
		}
		d, err := c.CreateTemplate(ctx, workflow.NewDocument{ProjectID: p, Title: t.Title, Body: t.Body})
		if err != nil {
			return out, fmt.Errorf("importing %s: %w", filepath.Base(t.File), err)
		}
		logger.Infof("imported template %q as %s", d.Title, d.ID)
		out = append(out, d)
	}
	return out, nil
}
