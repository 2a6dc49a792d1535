package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/edgeredirect/internal/config"
	"github.com/blackwell-systems/edgeredirect/internal/redirect"
)

const shippedConfig = "../../configs/edgeredirect.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateShippedConfig(t *testing.T) {
	out, err := execute(t, "validate", "-c", shippedConfig)
	require.NoError(t, err)
	assert.Equal(t, "config ok: 5 rule(s) for 2 host(s)\n", out)
}

func TestValidateReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("configVersion: 3\n"), 0o600))

	_, err := execute(t, "validate", "-c", path)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "configVersion must be 1")
}

func TestEvalScenarios(t *testing.T) {
	cases := []struct {
		args     []string
		matched  bool
		location string
	}{
		{[]string{"--url", "https://www.blackwell-systems.com/oss?x=1"}, true, "https://blog.blackwell-systems.com/oss?x=1"},
		{[]string{"--host", "blackwell-systems.com", "--path", "/gcp-emulator-pro/readme"}, true, "https://blog.blackwell-systems.com/products/gcp-emulator-pro/"},
		{[]string{"--host", "blackwell-systems.com", "--path", "/random-page"}, true, "https://blog.blackwell-systems.com/"},
		{[]string{"--url", "https://blog.blackwell-systems.com/posts/x"}, false, ""},
	}

	for _, tt := range cases {
		args := append([]string{"eval", "-c", shippedConfig}, tt.args...)
		out, err := execute(t, args...)
		require.NoError(t, err, strings.Join(tt.args, " "))

		var res redirect.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, tt.matched, res.Matched, strings.Join(tt.args, " "))
		assert.Equal(t, tt.location, res.Location)
	}
}

func TestEvalInvalidRequest(t *testing.T) {
	_, err := execute(t, "eval", "-c", shippedConfig, "--host", "blackwell-systems.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, redirect.ErrInvalidRequest)

	_, err = execute(t, "eval", "-c", shippedConfig, "--url", "https://x.example/", "--path", "/y")
	require.Error(t, err)
}

func TestRulesListsInOrder(t *testing.T) {
	out, err := execute(t, "rules", "-c", shippedConfig)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "www-to-blog")
	assert.Contains(t, lines[5], "apex-catch-all")
}

func TestBuildRequestDefaultsRootPath(t *testing.T) {
	req, err := buildRequest("https://www.blackwell-systems.com", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, redirect.Request{Host: "www.blackwell-systems.com", Path: "/"}, req)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "version=dev"))
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, ":9999", "http://origin.internal")
	assert.Equal(t, ":9999", cfg.Server.Listen)
	assert.Equal(t, "http://origin.internal", cfg.Origin.URL)
}
