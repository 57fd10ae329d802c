package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/config"
)

func load(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	return config.Load(v)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := load(t)

	assert.Equal(t, "tg-token", cfg.Telegram.Token)
	assert.Equal(t, "sk-test", cfg.Gateway.APIKey)
	assert.Equal(t, config.DefaultAssistantID, cfg.Gateway.AssistantID)
	assert.Equal(t, 20, cfg.Poll.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, config.TelegramPolling, cfg.Telegram.Mode)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ASSISTANT_ID", "asst_custom")
	t.Setenv("BRIDGE_POLL_MAX_ATTEMPTS", "5")
	t.Setenv("BRIDGE_POLL_INTERVAL", "2s")
	t.Setenv("BRIDGE_STORAGE_BACKEND", "sqlite")

	cfg := load(t)

	assert.Equal(t, "asst_custom", cfg.Gateway.AssistantID)
	assert.Equal(t, 5, cfg.Poll.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, config.StorageSQLite, cfg.Storage.Backend)
}

func TestValidateMissingCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	err := load(t).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingCredential))
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")

	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "")
	err = load(t).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestValidateMockGatewayNeedsNoAPIKey(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("BRIDGE_GATEWAY_USE_MOCK", "true")

	require.NoError(t, load(t).Validate())
}

func TestValidateFirestoreNeedsProject(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BRIDGE_STORAGE_BACKEND", "firestore")

	assert.Error(t, load(t).Validate())
}

func TestLoadAssistantToolsFromCommaList(t *testing.T) {
	t.Setenv("BRIDGE_ASSISTANT_TOOLS", "code_interpreter,file_search")
	assert.Equal(t, []string{"code_interpreter", "file_search"}, load(t).AssistantTools)

	t.Setenv("BRIDGE_ASSISTANT_TOOLS", "code_interpreter, retrieval function")
	assert.Equal(t, []string{"code_interpreter", "retrieval", "function"}, load(t).AssistantTools)

	t.Setenv("BRIDGE_ASSISTANT_TOOLS", "")
	assert.Empty(t, load(t).AssistantTools)
}

func TestLoadHTTPAPIToken(t *testing.T) {
	assert.Empty(t, load(t).HTTP.APIToken)

	t.Setenv("BRIDGE_HTTP_API_TOKEN", " api-s3cret ")
	assert.Equal(t, "api-s3cret", load(t).HTTP.APIToken)
}
