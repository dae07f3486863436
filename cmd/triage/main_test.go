package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/pkg/config"
	"bugtriage/pkg/triage"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) result {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var out, errOut bytes.Buffer
	code := run(args, stdin, &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func seededProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(func() { config.SetConfigForTesting(nil) })
	res := runCLI(t, nil, "-projectdir", dir, "seed")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Seeded demo data")
	return dir
}

func TestVersion(t *testing.T) {
	res := runCLI(t, nil, "version")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "triage dev")
	assert.Contains(t, res.stdout, "commit: none")
}

func TestUsageErrors(t *testing.T) {
	res := runCLI(t, nil)
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "Usage: triage")

	res = runCLI(t, nil, "frobnicate")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "frobnicate"`)

	res = runCLI(t, nil, "run", "-offline")
	assert.Equal(t, 2, res.code, "empty report")
}

func TestRunThenHistory(t *testing.T) {
	dir := seededProject(t)

	res := runCLI(t, nil, "-projectdir", dir, "run", "-offline", "Login", "failure", "in", "production")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Action:   found_duplicate (CSE-1)")
	assert.Contains(t, res.stdout, "Severity: high")

	res = runCLI(t, nil, "-projectdir", dir, "run", "-offline", "-json", "Memory leak in the export API")
	require.Equal(t, 0, res.code, res.stderr)
	var trace triage.Trace
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &trace))
	require.NotNil(t, trace.Output)
	assert.Equal(t, "CSE-3", trace.Output.CreatedTicketID)

	res = runCLI(t, nil, "-projectdir", dir, "history")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, trace.RunID)
	assert.Contains(t, res.stdout, "found_duplicate CSE-1")
	assert.Contains(t, res.stdout, "All runs: complete 2")

	res = runCLI(t, nil, "-projectdir", dir, "history", "-id", trace.RunID, "-events")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Created:  CSE-3")
	assert.Contains(t, res.stdout, "ticket_create")
	assert.Contains(t, res.stdout, "Events (")
	assert.Contains(t, res.stdout, "finish")

	res = runCLI(t, nil, "-projectdir", dir, "history", "-id", "missing")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not found")
}

func TestRunReadsStdinAndTrace(t *testing.T) {
	dir := seededProject(t)

	res := runCLI(t, strings.NewReader("Explain quantum mechanics\n"), "-projectdir", dir, "run", "-offline")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "🚫 Rejected")

	res = runCLI(t, nil, "-projectdir", dir, "run", "-offline", "-trace", "Typo in footer")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Path: CLASSIFY → SEARCH")
	assert.Contains(t, res.stdout, "🔧 ticket_search")
	assert.Contains(t, res.stdout, "✅ verification 1 passed")
}

func TestRepl(t *testing.T) {
	dir := seededProject(t)

	in := strings.NewReader("Login failure in production\n\nExplain quantum mechanics\nexit\nTypo in footer\n")
	res := runCLI(t, in, "-projectdir", dir, "repl", "-offline")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 2, strings.Count(res.stdout, "Path: CLASSIFY"), "stops at exit")
	assert.Contains(t, res.stdout, "found_duplicate (CSE-1)")
	assert.Contains(t, res.stdout, "Rejected")
}

func TestEvalGoldenSet(t *testing.T) {
	dir := seededProject(t)

	res := runCLI(t, nil, "-projectdir", dir, "eval", "-offline", "-min", "100",
		"-file", "../../pkg/golden/testdata/golden.yaml")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Results: 8/8 passed (100.0%)")

	res = runCLI(t, nil, "-projectdir", dir, "eval", "-offline")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "golden.yaml")
}

func TestSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPassword, "correct horse")
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	res := runCLI(t, strings.NewReader("sk-test\n"), "-projectdir", dir, "secrets", "set", "ANTHROPIC_API_KEY")
	require.Equal(t, 0, res.code, res.stderr)
	assert.True(t, config.SecretsFileExists(dir))

	res = runCLI(t, strings.NewReader("tok\n"), "-projectdir", dir, "secrets", "set", EnvAPIToken)
	require.Equal(t, 0, res.code, res.stderr)

	config.SetDecryptedSecrets(nil)
	res = runCLI(t, nil, "-projectdir", dir, "secrets", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "ANTHROPIC_API_KEY\n"+EnvAPIToken+"\n", res.stdout)

	res = runCLI(t, nil, "-projectdir", dir, "secrets", "unset", EnvAPIToken)
	require.Equal(t, 0, res.code, res.stderr)
	secrets, err := config.DecryptSecretsFile(dir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ANTHROPIC_API_KEY": "sk-test"}, secrets)

	t.Setenv(EnvPassword, "wrong")
	res = runCLI(t, nil, "-projectdir", dir, "secrets", "list")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "wrong password")
}
