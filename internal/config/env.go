package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that override values read from the config file.
const (
	EnvOllamaURL  = "LEGALQA_OLLAMA_URL"
	EnvLLMModel   = "LEGALQA_LLM_MODEL"
	EnvEmbedModel = "LEGALQA_EMBED_MODEL"
	EnvStorageDir = "LEGALQA_STORAGE_DIR"
	EnvPort       = "LEGALQA_PORT"
	EnvLogLevel   = "LEGALQA_LOG_LEVEL"
)

func applyEnvOverrides(cfg *AppConfig) {
	cfg.Ollama.URL = getEnv(EnvOllamaURL, cfg.Ollama.URL)
	cfg.LLM.Model = getEnv(EnvLLMModel, cfg.LLM.Model)
	cfg.Embedder.Model = getEnv(EnvEmbedModel, cfg.Embedder.Model)
	cfg.Storage.Dir = getEnv(EnvStorageDir, cfg.Storage.Dir)
	cfg.Server.Port = getEnvInt(EnvPort, cfg.Server.Port)
	cfg.Log.Level = getEnv(EnvLogLevel, cfg.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
