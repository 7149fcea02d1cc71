package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactPage = `<!DOCTYPE html><html><body>
<form id="contact">
	<label for="email">Email</label><input id="email" name="email" type="email">
	<label for="city">City</label><input id="city" name="city">
</form>
</body></html>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AUTOFILL_AI_ENABLED", "false")
	t.Setenv("AUTOFILL_API_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDetectCommand(t *testing.T) {
	page := writeFile(t, "contact.html", contactPage)

	out, err := run(t, "detect", "--file", page, "--file-url", "https://example.com/contact")
	require.NoError(t, err)

	var n struct {
		Domain string `json:"domain"`
		Forms  []struct {
			ID     string            `json:"id"`
			Fields []json.RawMessage `json:"fields"`
		} `json:"forms"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &n))
	assert.Equal(t, "example.com", n.Domain)
	require.Len(t, n.Forms, 1)
	assert.Equal(t, "contact", n.Forms[0].ID)
	assert.Len(t, n.Forms[0].Fields, 2)
}

func TestFillCommand(t *testing.T) {
	page := writeFile(t, "contact.html", contactPage)
	prof := writeFile(t, "profile.json", `{"profile":{"email":"ada@example.com","address":{"city":"London"}}}`)
	filled := filepath.Join(t.TempDir(), "filled.html")

	out, err := run(t, "fill", "--file", page, "--profile", prof, "--out", filled)
	require.NoError(t, err)

	var report struct {
		Outcome string `json:"outcome"`
		Applied int    `json:"applied"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "success", report.Outcome)
	assert.Equal(t, 2, report.Applied)

	html, err := os.ReadFile(filled)
	require.NoError(t, err)
	assert.Contains(t, string(html), `value="ada@example.com"`)
	assert.Contains(t, string(html), `value="London"`)
}

func TestFillCommand_ValuesDryRun(t *testing.T) {
	page := writeFile(t, "contact.html", contactPage)
	values := writeFile(t, "values.json", `{"city":"Paris"}`)

	out, err := run(t, "fill", "--file", page, "--values", values, "--dry-run")
	require.NoError(t, err)

	var report struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "dry-run", report.Outcome)
}

func TestCommands_Errors(t *testing.T) {
	_, err := run(t, "detect")
	assert.EqualError(t, err, "exactly one of --url or --file is required")

	page := writeFile(t, "static.html", `<p>nothing to fill</p>`)
	_, err = run(t, "detect", "--file", page)
	assert.EqualError(t, err, "no forms detected")

	page = writeFile(t, "contact.html", contactPage)
	_, err = run(t, "fill", "--file", page)
	assert.EqualError(t, err, "no user data available")
}
