package embedder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

const (
	// DefaultLocalModel is the sentence-transformer the catalog was tuned
	// against. 384-dimensional output.
	DefaultLocalModel = "all-MiniLM-L6-v2"

	defaultLocalRepo      = "sentence-transformers/all-MiniLM-L6-v2"
	defaultLocalDimension = 384
)

// LocalEmbedder runs a sentence-transformer ONNX model in-process.
type LocalEmbedder struct {
	model     string
	hfRepo    string
	dimension int
	cacheDir  string
	modelPath string

	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	loaded   bool
}

// LocalConfig configures the local ONNX embedder.
type LocalConfig struct {
	Model     string
	HFRepo    string
	Dimension int
	CacheDir  string
}

// NewLocalEmbedder creates a local embedder. The model is downloaded and
// loaded lazily on first use via EnsureModel.
func NewLocalEmbedder(cfg LocalConfig) (*LocalEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultLocalModel
	}
	if cfg.HFRepo == "" {
		cfg.HFRepo = defaultLocalRepo
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = defaultLocalDimension
	}

	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(home, ".bookmind", "models")
	}

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create model cache dir: %w", err)
	}

	return &LocalEmbedder{
		model:     cfg.Model,
		hfRepo:    cfg.HFRepo,
		dimension: cfg.Dimension,
		cacheDir:  cfg.CacheDir,
		modelPath: filepath.Join(cfg.CacheDir, cfg.Model),
	}, nil
}

// Dimension returns the embedding dimension.
func (l *LocalEmbedder) Dimension() int {
	return l.dimension
}

// Embed embeds a single text.
func (l *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return results[0], nil
}

// EmbedBatch embeds a batch of texts.
func (l *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.EnsureModel(ctx); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pipeline == nil {
		return nil, fmt.Errorf("pipeline not initialized")
	}

	output, err := l.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return output.Embeddings, nil
}

// EnsureModel downloads and loads the model if it is not already resident.
func (l *LocalEmbedder) EnsureModel(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return nil
	}

	if _, err := os.Stat(l.modelPath); os.IsNotExist(err) {
		downloadOpts := hugot.NewDownloadOptions()
		modelPath, err := hugot.DownloadModel(l.hfRepo, l.cacheDir, downloadOpts)
		if err != nil {
			return fmt.Errorf("download model %s: %w", l.hfRepo, err)
		}
		l.modelPath = modelPath
	}

	session, err := hugot.NewORTSession(
		options.WithIntraOpNumThreads(runtime.NumCPU()),
	)
	if err != nil {
		return fmt.Errorf("create ORT session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: l.modelPath,
		Name:      l.model,
	})
	if err != nil {
		session.Destroy()
		return fmt.Errorf("create pipeline: %w", err)
	}

	l.session = session
	l.pipeline = pipeline
	l.loaded = true
	return nil
}

// Close releases the ONNX session.
func (l *LocalEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		l.session.Destroy()
		l.session = nil
	}
	l.pipeline = nil
	l.loaded = false
	return nil
}
