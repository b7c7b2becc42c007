package shipproxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		env      map[string]string // pre-existing env vars
		wantEnv  map[string]string // expected env vars after load
		wantSkip map[string]bool   // keys that should NOT be set
	}{
		{
			name:    "basic SHIPPROXY_ vars",
			content: "SHIPPROXY_SERVER_HOST=offshore.example\nSHIPPROXY_SERVER_PORT=9191",
			wantEnv: map[string]string{"SHIPPROXY_SERVER_HOST": "offshore.example", "SHIPPROXY_SERVER_PORT": "9191"},
		},
		{
			name:     "non-SHIPPROXY_ vars ignored",
			content:  "OTHER_VAR=value\nPORT=3000\nSHIPPROXY_PORT=9090",
			wantEnv:  map[string]string{"SHIPPROXY_PORT": "9090"},
			wantSkip: map[string]bool{"OTHER_VAR": true, "PORT": true},
		},
		{
			name:    "existing env not overwritten",
			content: "SHIPPROXY_TRANSPORT=ws",
			env:     map[string]string{"SHIPPROXY_TRANSPORT": "tcp"},
			wantEnv: map[string]string{"SHIPPROXY_TRANSPORT": "tcp"},
		},
		{
			name:    "quoted values stripped",
			content: "SHIPPROXY_SERVER_HOST=\"quoted\"\nSHIPPROXY_TRANSPORT='single'",
			wantEnv: map[string]string{"SHIPPROXY_SERVER_HOST": "quoted", "SHIPPROXY_TRANSPORT": "single"},
		},
		{
			name:    "export prefix handled",
			content: "export SHIPPROXY_LOCAL_PORT=8181",
			wantEnv: map[string]string{"SHIPPROXY_LOCAL_PORT": "8181"},
		},
		{
			name:    "comments and blank lines skipped",
			content: "# comment\n\nSHIPPROXY_DEBUG=true\n  # indented comment",
			wantEnv: map[string]string{"SHIPPROXY_DEBUG": "true"},
		},
		{
			name:    "whitespace trimmed",
			content: "  SHIPPROXY_PORT  =  9999  ",
			wantEnv: map[string]string{"SHIPPROXY_PORT": "9999"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, ".env")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			for k := range tt.wantEnv {
				t.Setenv(k, "")
				os.Unsetenv(k)
			}
			for k := range tt.wantSkip {
				t.Setenv(k, "")
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			LoadEnv(path)

			for k, want := range tt.wantEnv {
				if got := os.Getenv(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}

			for k := range tt.wantSkip {
				if got := os.Getenv(k); got != "" {
					t.Errorf("%s should not be set, got %q", k, got)
				}
			}
		})
	}
}

func TestLoadEnv_FileNotFound(t *testing.T) {
	// Should not panic or error
	LoadEnv("/nonexistent/path/.env")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SHIPPROXY_TEST_INT", "42")
	t.Setenv("SHIPPROXY_TEST_BADINT", "x")
	t.Setenv("SHIPPROXY_TEST_DUR", "250ms")
	t.Setenv("SHIPPROXY_TEST_STR", "  host  ")
	t.Setenv("SHIPPROXY_TEST_BOOL", "true")

	if got := EnvInt("SHIPPROXY_TEST_INT", 1); got != 42 {
		t.Errorf("EnvInt = %d, want 42", got)
	}
	if got := EnvInt("SHIPPROXY_TEST_BADINT", 7); got != 7 {
		t.Errorf("EnvInt(bad) = %d, want 7", got)
	}
	if got := EnvInt("SHIPPROXY_TEST_UNSET", 8080); got != 8080 {
		t.Errorf("EnvInt(unset) = %d, want 8080", got)
	}
	if got := EnvDuration("SHIPPROXY_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("EnvDuration = %s, want 250ms", got)
	}
	if got := EnvString("SHIPPROXY_TEST_STR", "localhost"); got != "host" {
		t.Errorf("EnvString = %q, want host", got)
	}
	if got := EnvString("SHIPPROXY_TEST_UNSET", "localhost"); got != "localhost" {
		t.Errorf("EnvString(unset) = %q, want localhost", got)
	}
	if !EnvBool("SHIPPROXY_TEST_BOOL") || EnvBool("SHIPPROXY_TEST_UNSET") {
		t.Error("EnvBool mismatch")
	}
}
