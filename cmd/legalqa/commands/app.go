package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"legalqa/internal/chunker"
	"legalqa/internal/cleaner"
	"legalqa/internal/config"
	"legalqa/internal/domain"
	"legalqa/internal/embedding/hashing"
	embedollama "legalqa/internal/embedding/ollama"
	embedopenai "legalqa/internal/embedding/openai"
	llmollama "legalqa/internal/llm/ollama"
	llmopenai "legalqa/internal/llm/openai"
	"legalqa/internal/loader"
	"legalqa/internal/logging"
	"legalqa/internal/retention"
	"legalqa/internal/service"
	"legalqa/internal/summarizer"
	"legalqa/internal/vectorstore/memory"
	"legalqa/internal/vectorstore/qdrant"
	"legalqa/internal/vectorstore/sqlite"
)

// app holds everything a command needs once the config is loaded.
type app struct {
	cfg     *config.AppConfig
	cfgPath string
	log     *log.Logger
	llm     domain.LLM
	engine  *service.Engine
}

// withApp builds the app, runs fn and always closes the app afterwards so
// temp files are cleared on exit.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		runErr := fn(cmd, args, a)
		if err := a.Close(); err != nil {
			a.log.Warn("shutdown", "err", err)
		}
		return runErr
	}
}

func loadConfig() (*config.AppConfig, string, error) {
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		return cfg, cfgPath, err
	}
	return config.LoadDefault()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", path, "storage", cfg.Storage.Dir)

	ctx := cmd.Context()
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := buildChunker(cfg)
	if err != nil {
		return nil, err
	}
	llm, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	ld, err := loader.New(ctx, cleaner.New(cleaner.Options{
		RemovePageNumbers: cfg.Cleaner.RemovePageNumbers,
		FixThaiOCR:        cfg.Cleaner.FixThaiOCR,
	}))
	if err != nil {
		return nil, fmt.Errorf("initializing loader: %w", err)
	}
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	ret := retention.New(store, retention.Dirs{
		Uploads: cfg.UploadsDir(),
		Vectors: cfg.VectorDir(),
		Temp:    cfg.TempDir(),
	}, retention.Options{
		Days:       cfg.Retention.Days,
		TempMaxAge: time.Duration(cfg.Retention.TempMaxAgeHours) * time.Hour,
	}, logger)

	engine := service.NewEngine(service.Deps{
		Loader:     ld,
		Chunker:    ch,
		Embedder:   emb,
		Store:      store,
		LLM:        llm,
		Summarizer: summarizer.NewFrequencySummarizer(),
		Retention:  ret,
	}, service.Options{
		TopK:             cfg.Retrieval.TopK,
		SummaryTopK:      cfg.Retrieval.SummaryTopK,
		Threshold:        cfg.Retrieval.Threshold,
		Temperature:      cfg.LLM.Temperature,
		NumCtx:           cfg.LLM.NumCtx,
		PreviewSentences: cfg.Summarizer.MaxSentences,
		SaveOriginals:    cfg.Retention.SaveOriginalFiles,
		AutoDeleteTemp:   cfg.Retention.AutoDeleteTemp,
		FallbackModels:   cfg.LLM.AvailableModels,
	}, logger)

	a := &app{cfg: cfg, cfgPath: path, log: logger, llm: llm, engine: engine}
	if err := a.startup(ctx, ret); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// startup creates the storage folders and applies the retention policy.
func (a *app) startup(ctx context.Context, ret *retention.Manager) error {
	if err := ret.EnsureDirs(); err != nil {
		return fmt.Errorf("creating storage folders: %w", err)
	}
	report, err := a.engine.Cleanup(ctx)
	if err != nil {
		a.log.Warn("retention policy", "err", err)
	}
	if report.Deleted > 0 {
		a.log.Info("retention policy applied", "deleted", report.Deleted)
	}
	return nil
}

// Close releases the store and clears temp files when configured to.
func (a *app) Close() error {
	return a.engine.Close()
}

// title names the active model for headers and status lines.
func (a *app) title() string {
	return a.llm.Name() + ":" + a.llm.Model()
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	ec := cfg.Embedder
	timeout := time.Duration(ec.TimeoutSecs) * time.Second
	switch ec.Type {
	case "ollama":
		return embedollama.NewClient(embedollama.Config{
			BaseURL:    cfg.Ollama.URL,
			Model:      ec.Model,
			Dimension:  ec.Dimension,
			Timeout:    timeout,
			MaxRetries: ec.MaxRetries,
		}), nil
	case "openai":
		if ec.OpenAI == nil {
			return nil, errors.New("embedder.openai config missing")
		}
		return embedopenai.NewClient(embedopenai.Config{
			BaseURL:    ec.OpenAI.BaseURL,
			APIKeyEnv:  ec.OpenAI.APIKeyEnv,
			Model:      ec.Model,
			Dimension:  ec.Dimension,
			Timeout:    timeout,
			MaxRetries: ec.MaxRetries,
		}), nil
	case "hashing":
		return hashing.NewEmbedder(ec.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", ec.Type)
	}
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	cc := cfg.Chunker
	switch cc.Type {
	case "recursive":
		opts := []chunker.Option{chunker.WithChunkSize(cc.ChunkSize), chunker.WithOverlap(cc.ChunkOverlap)}
		if len(cc.Separators) > 0 {
			opts = append(opts, chunker.WithSeparators(cc.Separators))
		}
		return chunker.NewRecursiveChunker(opts...), nil
	case "sentence":
		return chunker.NewSentenceChunker(cc.SentencesPerChunk, cc.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cc.Type)
	}
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	vc := cfg.VectorStore
	switch vc.Type {
	case "sqlite":
		st, err := sqlite.Open(cfg.VectorDir())
		if err != nil {
			return nil, fmt.Errorf("opening vector store: %w", err)
		}
		return st, nil
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		if vc.Qdrant == nil {
			return nil, errors.New("vector_store.qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        vc.Qdrant.URL,
			APIKey:     vc.Qdrant.APIKey,
			Collection: vc.Collection,
			Timeout:    time.Duration(vc.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vc.Type)
	}
}

func buildLLM(cfg *config.AppConfig) (domain.LLM, error) {
	lc := cfg.LLM
	timeout := time.Duration(lc.TimeoutSecs) * time.Second
	switch lc.Type {
	case "ollama":
		return llmollama.NewClient(llmollama.Config{
			BaseURL:    cfg.Ollama.URL,
			Model:      lc.Model,
			Timeout:    timeout,
			MaxRetries: lc.MaxRetries,
		}), nil
	case "openai":
		if lc.OpenAI == nil {
			return nil, errors.New("llm.openai config missing")
		}
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:    lc.OpenAI.BaseURL,
			APIKeyEnv:  lc.OpenAI.APIKeyEnv,
			Model:      lc.Model,
			Timeout:    timeout,
			MaxRetries: lc.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm: %s", lc.Type)
	}
}
