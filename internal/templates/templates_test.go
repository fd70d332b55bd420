package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	meta, body, err := Parse[Meta](strings.NewReader("---\ntitle: \"Design Doc\"\nproject: core\n---\n\n## Context\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "Design Doc", meta.Title)
	assert.Equal(t, "core", meta.Project)
	assert.Equal(t, "## Context", body)
}

func TestMarshalRoundTrip(t *testing.T) {
	b, err := Marshal(Meta{Title: "RFC"}, "## Problem")
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: RFC\n---\n\n## Problem\n", string(b))

	meta, body, err := Parse[Meta](strings.NewReader(string(b)))
	require.NoError(t, err)
	assert.Equal(t, "RFC", meta.Title)
	assert.Equal(t, "## Problem", body)

	b, err = Marshal(Meta{Title: "Empty"}, "")
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Empty\n---\n", string(b))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b-rfc.md", "---\ntitle: RFC\n---\n\n## Problem\n")
	write(t, dir, "a-postmortem.md", "---\ntitle: Postmortem\nproject: ops\n---\n\n## Timeline\n")
	write(t, dir, "notes.md", "no frontmatter here")
	write(t, dir, "readme.txt", "---\ntitle: Ignored\n---\n")

	ts, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "Postmortem", ts[0].Title)
	assert.Equal(t, "ops", ts[0].Project)
	assert.Equal(t, "## Timeline", ts[0].Body)
	assert.Equal(t, "RFC", ts[1].Title)
	assert.Equal(t, filepath.Join(dir, "b-rfc.md"), ts[1].File)
}

func TestLoadReportsBadFrontmatter(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "broken.md", "---\ntitle: [unterminated\n---\nbody\n")
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.md")
}

func TestImportCreatesPublishedTemplates(t *testing.T) {
	repo := repository.NewMemoryRepo()
	eng := workflow.New(repo, events.NewBus(), workflow.SnapshotWarn)
	ctx := identity.WithActor(context.Background(), identity.Actor{ID: "alice"})

	ts := []Template{
		{File: "a.md", Meta: Meta{Title: "Postmortem", Project: "ops"}, Body: "## Timeline"},
		{File: "b.md", Meta: Meta{Title: "RFC"}, Body: "## Problem"},
	}
	docs, err := Import(ctx, eng, ts, "core")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.True(t, d.IsTemplate)
		assert.Equal(t, document.StatusPublished, d.Status)
		assert.Equal(t, "alice", d.AuthorID)
	}
	assert.Equal(t, "ops", docs[0].ProjectID)
	assert.Equal(t, "core", docs[1].ProjectID)
	assert.Equal(t, "## Problem", docs[1].Body)
}

type failingCreator struct{ after int }

func (f *failingCreator) CreateTemplate(ctx context.Context, in workflow.NewDocument) (*document.Document, error) {
	if f.after == 0 {
		return nil, errors.New("store down")
	}
	f.after--
	return &document.Document{ID: in.Title, Title: in.Title, IsTemplate: true}, nil
}

func TestImportStopsAtFirstFailure(t *testing.T) {
	ts := []Template{{File: "a.md", Meta: Meta{Title: "A"}}, {File: "b.md", Meta: Meta{Title: "B"}}, {File: "c.md", Meta: Meta{Title: "C"}}}
	docs, err := Import(context.Background(), &failingCreator{after: 1}, ts, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.md")
	require.Len(t, docs, 1)
}
