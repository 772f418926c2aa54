package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageCUE = `
type: Page: {
	stages: ["draft", "live"]
	table: "pages"
	fields: {
		title:   string
		content: string
	}
	subclass: NewsPage: {
		table: "news_pages"
		fields: {
			summary: string
			urgent:  bool
		}
	}
}
`

// newWorkspace lays out a specs directory and returns global flag values
// pointing at it.
func newWorkspace(t *testing.T) (specsDir, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	specsDir = filepath.Join(dir, "specs")
	require.NoError(t, os.Mkdir(specsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(specsDir, "page.cue"), []byte(pageCUE), 0o644))
	return specsDir, filepath.Join(dir, "content.db")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCLI_WritePublishShowRoundTrip(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	out, err := execute(t, append(global, "init")...)
	require.NoError(t, err, out)

	out, err = execute(t, append(global,
		"write", "NewsPage",
		`{"pages":{"title":"Hello"},"news_pages":{"summary":"Short","urgent":true}}`,
		"--stage", "draft", "--author", "alice")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "record 1 version 1")

	out, err = execute(t, append(global, "publish", "Page", "1", "--from", "draft", "--to", "live")...)
	require.NoError(t, err, out)

	out, err = execute(t, append(global, "--format", "json", "show", "Page", "1", "--stage", "live")...)
	require.NoError(t, err, out)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "NewsPage", data["class"])
	fields := data["fields"].(map[string]any)
	assert.Equal(t, "Hello", fields["title"])
	assert.Equal(t, "Short", fields["summary"])

	out, err = execute(t, append(global, "history", "Page", "1")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 version(s)")
	assert.Contains(t, out, "alice")

	out, err = execute(t, append(global, "unpublish", "Page", "1", "--stage", "live")...)
	require.NoError(t, err, out)

	_, err = execute(t, append(global, "show", "Page", "1", "--stage", "live")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCLI_ShowAtVersion(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	_, err := execute(t, append(global, "init")...)
	require.NoError(t, err)

	_, err = execute(t, append(global,
		"write", "Page", `{"pages":{"title":"One"}}`, "--stage", "draft")...)
	require.NoError(t, err)
	_, err = execute(t, append(global,
		"write", "Page", `{"pages":{"title":"Two"}}`, "--stage", "draft", "--record", "1")...)
	require.NoError(t, err)

	out, err := execute(t, append(global, "show", "Page", "1", "--version", "1")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "One")
}

func TestCLI_StagesCommand(t *testing.T) {
	specs, _ := newWorkspace(t)

	out, err := execute(t, "--specs", specs, "stages", "Page")
	require.NoError(t, err, out)
	assert.Contains(t, out, "draft (primal)")
	assert.Contains(t, out, "live")
}

func TestCLI_PreviewSessionPinsMode(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	_, err := execute(t, append(global, "init")...)
	require.NoError(t, err)

	_, err = execute(t, append(global,
		"write", "Page", `{"pages":{"title":"Draft title"}}`, "--stage", "draft")...)
	require.NoError(t, err)
	_, err = execute(t, append(global, "publish", "Page", "1", "--from", "draft", "--to", "live")...)
	require.NoError(t, err)
	_, err = execute(t, append(global,
		"write", "Page", `{"pages":{"title":"Newer draft"}}`, "--stage", "draft", "--record", "1")...)
	require.NoError(t, err)

	out, err := execute(t, append(global, "preview", "--stage", "live")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "pinned to stage(live)")

	// Flagless show follows the session.
	out, err = execute(t, append(global, "show", "Page", "1")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Draft title")

	// Explicit flags win over the session.
	out, err = execute(t, append(global, "show", "Page", "1", "--stage", "draft")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Newer draft")

	out, err = execute(t, append(global, "preview")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "stage(live)")

	out, err = execute(t, append(global, "preview", "--clear")...)
	require.NoError(t, err, out)

	out, err = execute(t, append(global, "show", "Page", "1")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Newer draft")
}

func TestCLI_TypesCommand(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	_, err := execute(t, append(global, "init")...)
	require.NoError(t, err)

	out, err := execute(t, append(global, "types", "Page")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 class(es)")
	assert.Contains(t, out, "NewsPage")

	_, err = execute(t, append(global,
		"write", "NewsPage",
		`{"pages":{"title":"Hello"},"news_pages":{"summary":"S","urgent":false}}`,
		"--stage", "draft")...)
	require.NoError(t, err)

	out, err = execute(t, append(global, "--format", "json", "types", "Page", "--stored")...)
	require.NoError(t, err, out)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.ElementsMatch(t, []any{"Page", "NewsPage"}, data["classes"])
}

func TestCLI_InvalidFormatRejected(t *testing.T) {
	specs, _ := newWorkspace(t)

	_, err := execute(t, "--specs", specs, "--format", "xml", "stages", "Page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCLI_BadFieldsJSON(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	_, err := execute(t, append(global, "init")...)
	require.NoError(t, err)

	_, err = execute(t, append(global, "write", "Page", "not-json", "--stage", "draft")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_BadRecordID(t *testing.T) {
	specs, db := newWorkspace(t)
	global := []string{"--specs", specs, "--db", db}

	_, err := execute(t, append(global, "init")...)
	require.NoError(t, err)

	_, err = execute(t, append(global, "publish", "Page", "zero", "--from", "draft", "--to", "live")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
