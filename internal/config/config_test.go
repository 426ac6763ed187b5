package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, 120, cfg.Throttle.TenantPerMinute)
	assert.Equal(t, 6, cfg.Throttle.RecipientPerMinute)
	assert.Equal(t, 120*time.Second, cfg.Throttle.IdleExpiry)

	assert.Equal(t, 5, cfg.Breaker.FailThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Window)
	assert.Equal(t, 20*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 2, cfg.Breaker.HalfOpenMaxCalls)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 3*time.Second, cfg.Retry.MaxInterval)

	assert.Equal(t, 20*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxIdleTime)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, "en-GB", cfg.Template.DefaultLocale)
	assert.Equal(t, "console", cfg.Provider.Email)
	assert.Equal(t, "console", cfg.Provider.Backends()["inapp"])
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("THROTTLE_RECIPIENT_PER_MINUTE", "1")
	t.Setenv("BREAKER_COOLDOWN", "45s")
	t.Setenv("PROVIDER_SMS", "twilio")
	t.Setenv("DATABASE_CONN_MAX_IDLE_TIME", "90s")
	t.Setenv("POLICY_TENANT_CHANNELS", "t1:email|SMS,t2:push")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Throttle.RecipientPerMinute)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, "twilio", cfg.Provider.Backends()["sms"])
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxIdleTime)
	assert.Equal(t, map[string]string{"t1": "email|SMS", "t2": "push"}, cfg.Policy.TenantChannels)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "three")

	_, err := Load()
	assert.Error(t, err)
}

func TestPolicyConfig_TenantOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
tenants:
  t2:
    - Email
    - " sms "
  t3: []
`), 0o600))

	tests := []struct {
		name   string
		policy PolicyConfig
		want   map[string][]string
	}{
		{
			name:   "empty",
			policy: PolicyConfig{},
			want:   map[string][]string{},
		},
		{
			name: "env only",
			policy: PolicyConfig{TenantChannels: map[string]string{
				"t1": "email| sms ",
				" ": "push",
			}},
			want: map[string][]string{"t1": {"email", "sms"}},
		},
		{
			name: "file overrides env",
			policy: PolicyConfig{
				TenantChannels: map[string]string{"t1": "email", "t2": "push"},
				File:           file,
			},
			want: map[string][]string{
				"t1": {"email"},
				"t2": {"email", "sms"},
				"t3": {},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.TenantOverrides()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyConfig_TenantOverridesErrors(t *testing.T) {
	_, err := PolicyConfig{File: filepath.Join(t.TempDir(), "missing.yaml")}.TenantOverrides()
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tenants: [oops"), 0o600))
	_, err = PolicyConfig{File: bad}.TenantOverrides()
	assert.Error(t, err)
}
