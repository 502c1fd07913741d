package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("CARELINK_USERNAME", "patient")
	t.Setenv("CARELINK_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)
	t.Setenv("NS", "https://ns.example.com")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Equal(t, 24, cfg.SGVLimit)
	assert.Equal(t, 512*time.Second, cfg.MaxRetryDuration())
	assert.True(t, cfg.Verbose())
	assert.False(t, cfg.ResendLatestTrend)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "https://carelink.minimed.com", cfg.CareLinkBaseURL)
	assert.Equal(t, "https://ns.example.com/api/v1/entries.json", cfg.Endpoint())
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	setCredentials(t)
	t.Setenv("WEBSITE_HOSTNAME", "mysite.azurewebsites.net")
	t.Setenv("CARELINK_REQUEST_INTERVAL", "30000")
	t.Setenv("CARELINK_SGV_LIMIT", "12")
	t.Setenv("CARELINK_MAX_RETRY_DURATION", "64")
	t.Setenv("CARELINK_QUIET", "true")
	t.Setenv("API_SECRET", "abcdefghijkl")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, 12, cfg.SGVLimit)
	assert.Equal(t, 64*time.Second, cfg.MaxRetryDuration())
	assert.False(t, cfg.Verbose())
	assert.Equal(t, "abcdefghijkl", cfg.APISecret)
	assert.Equal(t, "https://mysite.azurewebsites.net/api/v1/entries.json", cfg.Endpoint())
}

func TestLoad_QuietAcceptsAnyNonEmptyValue(t *testing.T) {
	tests := []struct {
		value   string
		verbose bool
	}{
		{"yes", false},
		{"1", false},
		{"TRUE", false},
		{"false", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setCredentials(t)
			t.Setenv("NS", "https://ns.example.com")
			t.Setenv("CARELINK_QUIET", tt.value)

			cfg, err := Load(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.verbose, cfg.Verbose())
		})
	}
}

func TestLoad_EnvNameFallbacks(t *testing.T) {
	t.Setenv("CUSTOMCONNSTR_CARELINK_USERNAME", "azure-user")
	t.Setenv("carelink_password", "lower-secret")
	t.Setenv("CUSTOMCONNSTR_ns", "https://ns.example.com/")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "azure-user", cfg.Username)
	assert.Equal(t, "lower-secret", cfg.Password)
	assert.Equal(t, "https://ns.example.com/api/v1/entries.json", cfg.Endpoint())
}

func TestLoad_EnvNamePriority(t *testing.T) {
	t.Setenv("CARELINK_USERNAME", "primary")
	t.Setenv("CUSTOMCONNSTR_CARELINK_USERNAME", "azure")
	t.Setenv("CARELINK_PASSWORD", "secret")
	t.Setenv("CARELINK_DRY_RUN", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Username)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	setCredentials(t)
	t.Setenv("NS", "https://env.example.com")

	cfg, err := Load([]string{"--ns", "https://flag.example.com", "--sgv-limit", "6", "--resend-latest-trend"})
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com/api/v1/entries.json", cfg.Endpoint())
	assert.Equal(t, 6, cfg.SGVLimit)
	assert.True(t, cfg.ResendLatestTrend)
}

func TestLoad_NSWinsOverHost(t *testing.T) {
	setCredentials(t)
	t.Setenv("NS", "http://localhost:1337")
	t.Setenv("WEBSITE_HOSTNAME", "ignored.example.com")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1337/api/v1/entries.json", cfg.Endpoint())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	content := "username: file-user\npassword: file-pass\nns_base_url: https://file.example.com\ninterval_ms: 5000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "file-user", cfg.Username)
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.Equal(t, "https://file.example.com/api/v1/entries.json", cfg.Endpoint())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing username", map[string]string{"CARELINK_PASSWORD": "x", "NS": "http://ns"}, "missing CareLink username"},
		{"missing password", map[string]string{"CARELINK_USERNAME": "x", "NS": "http://ns"}, "missing CareLink password"},
		{"missing endpoint", map[string]string{"CARELINK_USERNAME": "x", "CARELINK_PASSWORD": "y"}, "missing Nightscout endpoint"},
		{"bad interval", map[string]string{"CARELINK_USERNAME": "x", "CARELINK_PASSWORD": "y", "NS": "http://ns", "CARELINK_REQUEST_INTERVAL": "0"}, "interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_DryRunNeedsNoEndpoint(t *testing.T) {
	setCredentials(t)

	cfg, err := Load([]string{"--dry-run"})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Empty(t, cfg.Endpoint())
}

func TestEnvNames(t *testing.T) {
	assert.Equal(t,
		[]string{"API_SECRET", "api_secret", "CUSTOMCONNSTR_API_SECRET", "CUSTOMCONNSTR_api_secret"},
		EnvNames("API_SECRET"))
}
