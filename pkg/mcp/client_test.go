package mcp

import "testing"

func TestResolveVariablesSubstitutesCommandArgsEnv(t *testing.T) {
	cfg := ServerConfig{
		Command: "${BIN_PATH}/server",
		Args:    []string{"--token=${API_TOKEN}"},
		Env:     map[string]string{"API_KEY": "${API_TOKEN}"},
	}
	vars := map[string]string{"BIN_PATH": "/usr/local/bin", "API_TOKEN": "sk-123"}

	resolved, ok := ResolveVariables(cfg, vars)
	if !ok {
		t.Fatalf("expected ResolveVariables to succeed")
	}
	if resolved.Command != "/usr/local/bin/server" {
		t.Errorf("Command = %q, want %q", resolved.Command, "/usr/local/bin/server")
	}
	if resolved.Args[0] != "--token=sk-123" {
		t.Errorf("Args[0] = %q, want %q", resolved.Args[0], "--token=sk-123")
	}
	if resolved.Env["API_KEY"] != "sk-123" {
		t.Errorf("Env[API_KEY] = %q, want %q", resolved.Env["API_KEY"], "sk-123")
	}
}

func TestResolveVariablesCaseInsensitiveLookup(t *testing.T) {
	cfg := ServerConfig{Command: "${bin_path}/server"}
	vars := map[string]string{"BIN_PATH": "/opt/bin"}

	resolved, ok := ResolveVariables(cfg, vars)
	if !ok {
		t.Fatalf("expected a case-insensitive match to succeed")
	}
	if resolved.Command != "/opt/bin/server" {
		t.Errorf("Command = %q, want %q", resolved.Command, "/opt/bin/server")
	}
}

func TestResolveVariablesRejectsUnresolvedCommand(t *testing.T) {
	cfg := ServerConfig{Command: "${MISSING}/server"}

	if _, ok := ResolveVariables(cfg, map[string]string{}); ok {
		t.Errorf("expected ResolveVariables to reject a command with an unresolved placeholder")
	}
}

func TestResolveVariablesRejectsUnresolvedArg(t *testing.T) {
	cfg := ServerConfig{Command: "server", Args: []string{"${MISSING}"}}

	if _, ok := ResolveVariables(cfg, map[string]string{}); ok {
		t.Errorf("expected ResolveVariables to reject an arg with an unresolved placeholder")
	}
}

func TestResolveVariablesDropsUnresolvedEnvKeyOnly(t *testing.T) {
	cfg := ServerConfig{
		Command: "server",
		Env: map[string]string{
			"RESOLVED":   "${KNOWN}",
			"UNRESOLVED": "${MISSING}",
		},
	}

	resolved, ok := ResolveVariables(cfg, map[string]string{"KNOWN": "value"})
	if !ok {
		t.Fatalf("an unresolved env value should drop that key, not reject the whole config")
	}
	if resolved.Env["RESOLVED"] != "value" {
		t.Errorf("Env[RESOLVED] = %q, want %q", resolved.Env["RESOLVED"], "value")
	}
	if _, ok := resolved.Env["UNRESOLVED"]; ok {
		t.Errorf("Env[UNRESOLVED] should have been dropped")
	}
}

func TestMergeVarsSecretsOverrideEnviron(t *testing.T) {
	environ := []string{"API_TOKEN=from-env", "OTHER=kept"}
	secrets := map[string]string{"API_TOKEN": "from-secret"}

	merged := MergeVars(secrets, environ)
	if merged["API_TOKEN"] != "from-secret" {
		t.Errorf("API_TOKEN = %q, want secrets to win", merged["API_TOKEN"])
	}
	if merged["OTHER"] != "kept" {
		t.Errorf("OTHER = %q, want %q", merged["OTHER"], "kept")
	}
}

func TestMergeVarsIgnoresMalformedEnvironEntry(t *testing.T) {
	environ := []string{"NOEQUALSIGN"}
	merged := MergeVars(nil, environ)
	if len(merged) != 0 {
		t.Errorf("expected a malformed environ entry without '=' to be skipped, got %+v", merged)
	}
}
