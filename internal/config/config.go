package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// OllamaConfig points at the local Ollama server shared by the LLM and the embedder.
type OllamaConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// OpenAIConfig holds connection details for an OpenAI-compatible local endpoint
// such as llama.cpp server, LM Studio or Ollama's /v1 API.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
}

// LLMConfig selects and configures the chat model client.
type LLMConfig struct {
	Type            string        `yaml:"type" toml:"type"`
	Model           string        `yaml:"model" toml:"model"`
	AvailableModels []string      `yaml:"available_models" toml:"available_models"`
	Temperature     float64       `yaml:"temperature" toml:"temperature"`
	NumCtx          int           `yaml:"num_ctx" toml:"num_ctx"`
	TimeoutSecs     int           `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries      int           `yaml:"max_retries" toml:"max_retries"`
	OpenAI          *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type" toml:"type"`
	Model       string        `yaml:"model" toml:"model"`
	Dimension   int           `yaml:"dimension" toml:"dimension"`
	TimeoutSecs int           `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int           `yaml:"max_retries" toml:"max_retries"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string   `yaml:"type" toml:"type"`
	ChunkSize         int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap" toml:"chunk_overlap"`
	Separators        []string `yaml:"separators" toml:"separators"`
	SentencesPerChunk int      `yaml:"sentences_per_chunk" toml:"sentences_per_chunk"`
	OverlapSentences  int      `yaml:"overlap_sentences" toml:"overlap_sentences"`
}

// CleanerConfig toggles optional text cleaning steps.
type CleanerConfig struct {
	RemovePageNumbers bool `yaml:"remove_page_numbers" toml:"remove_page_numbers"`
	FixThaiOCR        bool `yaml:"fix_thai_ocr" toml:"fix_thai_ocr"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	TopK        int     `yaml:"top_k" toml:"top_k"`
	SummaryTopK int     `yaml:"summary_top_k" toml:"summary_top_k"`
	Threshold   float64 `yaml:"threshold" toml:"threshold"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type" toml:"type"`
	Collection string        `yaml:"collection" toml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// StorageConfig sets the root folder of all local state.
type StorageConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// RetentionConfig controls what is kept on disk and for how long.
type RetentionConfig struct {
	Days              int  `yaml:"days" toml:"days"`
	TempMaxAgeHours   int  `yaml:"temp_max_age_hours" toml:"temp_max_age_hours"`
	AutoDeleteTemp    bool `yaml:"auto_delete_temp" toml:"auto_delete_temp"`
	SaveOriginalFiles bool `yaml:"save_original_files" toml:"save_original_files"`
}

// PrivacyConfig restricts where data may be sent.
type PrivacyConfig struct {
	AllowRemote bool `yaml:"allow_remote" toml:"allow_remote"`
}

// ServerConfig configures the local web UI.
type ServerConfig struct {
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb" toml:"max_upload_mb"`
}

// SummarizerConfig configures the upload preview summarizer.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences" toml:"max_sentences"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Ollama      OllamaConfig      `yaml:"ollama" toml:"ollama"`
	LLM         LLMConfig         `yaml:"llm" toml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Cleaner     CleanerConfig     `yaml:"cleaner" toml:"cleaner"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Retention   RetentionConfig   `yaml:"retention" toml:"retention"`
	Privacy     PrivacyConfig     `yaml:"privacy" toml:"privacy"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Summarizer  SummarizerConfig  `yaml:"summarizer" toml:"summarizer"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// UploadsDir holds the original uploaded files, one folder per document.
func (c *AppConfig) UploadsDir() string { return filepath.Join(c.Storage.Dir, "uploads") }

// VectorDir holds the persistent vector store.
func (c *AppConfig) VectorDir() string { return filepath.Join(c.Storage.Dir, "vector_db") }

// TempDir holds in-flight uploads. It is cleared on shutdown.
func (c *AppConfig) TempDir() string { return filepath.Join(c.Storage.Dir, "temp") }

// Addr is the listen address of the web UI.
func (c *AppConfig) Addr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprint(c.Server.Port))
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnvOverrides(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml, ./config.toml, then ~/.config/legalqa/config.yaml.
// If none exists, it writes defaults to ~/.config/legalqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and enforces that every endpoint stays on this machine
// unless privacy.allow_remote is set.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive"))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive"))
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.threshold must be in [-1, 1]"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 1]"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Retention.Days < 0 {
		errs = append(errs, fmt.Errorf("retention.days must not be negative"))
	}
	if c.Storage.Dir == "" {
		errs = append(errs, fmt.Errorf("storage.dir is required"))
	}
	if !c.Privacy.AllowRemote {
		if !IsLoopbackHost(c.Server.Host) {
			errs = append(errs, fmt.Errorf("server.host %q is not a loopback address", c.Server.Host))
		}
		for name, raw := range c.endpoints() {
			if err := checkLocalURL(raw); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *AppConfig) endpoints() map[string]string {
	eps := map[string]string{}
	if c.LLM.Type == "ollama" || c.Embedder.Type == "ollama" {
		eps["ollama.url"] = c.Ollama.URL
	}
	if c.LLM.Type == "openai" && c.LLM.OpenAI != nil {
		eps["llm.openai.base_url"] = c.LLM.OpenAI.BaseURL
	}
	if c.Embedder.Type == "openai" && c.Embedder.OpenAI != nil {
		eps["embedder.openai.base_url"] = c.Embedder.OpenAI.BaseURL
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant != nil {
		eps["vector_store.qdrant.url"] = c.VectorStore.Qdrant.URL
	}
	return eps
}

// IsLoopbackHost reports whether host names this machine.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

func checkLocalURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if !IsLoopbackHost(u.Hostname()) {
		return fmt.Errorf("%q is not a loopback address", raw)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "legalqa", "config.yaml"), nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "storage"
	}
	return filepath.Join(home, ".legalqa")
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Ollama: OllamaConfig{URL: "http://localhost:11434"},
		LLM: LLMConfig{
			Type:  "ollama",
			Model: "llama3.2",
			AvailableModels: []string{
				"llama3.2", "llama3.2:1b", "gemma2:2b", "gemma2:9b", "qwen2.5:3b", "qwen2.5:7b",
			},
			Temperature: 0.3,
			NumCtx:      4096,
			TimeoutSecs: 120,
			MaxRetries:  3,
		},
		Embedder: EmbedderConfig{
			Type:        "ollama",
			Model:       "nomic-embed-text",
			Dimension:   768,
			TimeoutSecs: 60,
			MaxRetries:  3,
		},
		Chunker: ChunkerConfig{
			Type:              "recursive",
			ChunkSize:         1000,
			ChunkOverlap:      100,
			SentencesPerChunk: 5,
			OverlapSentences:  1,
		},
		Cleaner:     CleanerConfig{RemovePageNumbers: true, FixThaiOCR: true},
		Retrieval:   RetrievalConfig{TopK: 4, SummaryTopK: 10, Threshold: 0.3},
		VectorStore: VectorStoreConfig{Type: "sqlite", Collection: "legal_documents"},
		Storage:     StorageConfig{Dir: defaultStorageDir()},
		Retention: RetentionConfig{
			Days:              30,
			TempMaxAgeHours:   24,
			AutoDeleteTemp:    true,
			SaveOriginalFiles: true,
		},
		Server:     ServerConfig{Host: "127.0.0.1", Port: 7860, MaxUploadMB: 50},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = "http://localhost:11434"
	}
	cfg.Ollama.URL = strings.TrimRight(cfg.Ollama.URL, "/")
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "ollama"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.NumCtx == 0 {
		cfg.LLM.NumCtx = 4096
	}
	if cfg.LLM.Type == "openai" {
		cfg.LLM.OpenAI = openAIDefaults(cfg.LLM.OpenAI, cfg.Ollama.URL)
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "ollama"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 60
	}
	if cfg.Embedder.MaxRetries == 0 {
		cfg.Embedder.MaxRetries = 3
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		cfg.Embedder.OpenAI = openAIDefaults(cfg.Embedder.OpenAI, cfg.Ollama.URL)
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.SummaryTopK == 0 {
		cfg.Retrieval.SummaryTopK = 10
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "legal_documents"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	}
	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	if cfg.Retention.TempMaxAgeHours == 0 {
		cfg.Retention.TempMaxAgeHours = 24
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7860
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func openAIDefaults(oc *OpenAIConfig, ollamaURL string) *OpenAIConfig {
	if oc == nil {
		oc = &OpenAIConfig{}
	}
	if oc.BaseURL == "" {
		oc.BaseURL = ollamaURL + "/v1"
	}
	if oc.APIKeyEnv == "" {
		oc.APIKeyEnv = "OPENAI_API_KEY"
	}
	return oc
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
