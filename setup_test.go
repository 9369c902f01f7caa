package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review-moderator", "config.env")

	err := writeEnvFile(path, map[string]string{
		"TELEGRAM_CHAT_ID": "-100",
		"GEMINI_API_KEY":   `key"with"quotes`,
		"MODEL_PROVIDER":   "gemini",
		"UNKNOWN":          "ignored",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MODEL_PROVIDER=\"gemini\"\nGEMINI_API_KEY=\"key\\\"with\\\"quotes\"\nTELEGRAM_CHAT_ID=\"-100\"\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestValidateGeminiKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("key") {
		case "good":
			w.Write([]byte(`{"models": []}`))
		case "bad":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "API key not valid. Please pass a valid API key."}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	orig := geminiModelsURL
	geminiModelsURL = ts.URL
	t.Cleanup(func() { geminiModelsURL = orig })

	assert.NoError(t, validateGeminiKey("good"))
	assert.EqualError(t, validateGeminiKey("bad"), "API key not valid. Please pass a valid API key.")
	assert.EqualError(t, validateGeminiKey("other"), "unexpected response (HTTP 500)")
}

func TestValidateTelegramToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bot123:good/getMe" {
			w.Write([]byte(`{"ok": true, "result": {"username": "moderation_bot"}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok": false, "description": "Unauthorized"}`))
	}))
	defer ts.Close()

	orig := telegramAPIURL
	telegramAPIURL = ts.URL
	t.Cleanup(func() { telegramAPIURL = orig })

	assert.NoError(t, validateTelegramToken("123:good"))
	assert.EqualError(t, validateTelegramToken("123:bad"), "Unauthorized")
}
