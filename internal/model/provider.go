package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultModelURL  = "https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2net.onnx"
	DefaultModelPath = "/tmp/u2net.onnx"
)

// Loader turns a model file on disk into a Segmenter.
type Loader func(path string) (Segmenter, error)

type ProviderConfig struct {
	URL  string
	Path string
	// DownloadTimeout bounds the model fetch; 0 means no timeout.
	DownloadTimeout time.Duration
}

// Provider owns the process-wide model handle. The first Get downloads the
// model file if it is missing and loads it; later calls return the same
// handle. Failed attempts are not cached.
type Provider struct {
	cfg    ProviderConfig
	load   Loader
	client *http.Client
	logger *zap.Logger

	mu        sync.Mutex
	segmenter Segmenter
	loaded    atomic.Bool
}

func NewProvider(cfg ProviderConfig, load Loader, logger *zap.Logger) *Provider {
	if cfg.URL == "" {
		cfg.URL = DefaultModelURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultModelPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		load:   load,
		client: &http.Client{Timeout: cfg.DownloadTimeout},
		logger: logger,
	}
}

func (p *Provider) Get(ctx context.Context) (Segmenter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.segmenter != nil {
		return p.segmenter, nil
	}

	if err := p.ensureFile(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	start := time.Now()
	seg, err := p.load(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	p.logger.Info("model loaded",
		zap.String("path", p.cfg.Path),
		zap.Duration("duration", time.Since(start)))

	p.segmenter = seg
	p.loaded.Store(true)
	return seg, nil
}

// Loaded reports whether a handle has been created. It does not wait for an
// in-flight load.
func (p *Provider) Loaded() bool {
	return p.loaded.Load()
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.segmenter == nil {
		return nil
	}
	var err error
	if c, ok := p.segmenter.(io.Closer); ok {
		err = c.Close()
	}
	p.segmenter = nil
	p.loaded.Store(false)
	return err
}

func (p *Provider) ensureFile(ctx context.Context) error {
	_, err := os.Stat(p.cfg.Path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat model: %w", err)
	}

	p.logger.Info("downloading model", zap.String("url", p.cfg.URL), zap.String("path", p.cfg.Path))
	start := time.Now()
	n, err := p.download(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("model downloaded",
		zap.Int64("bytes", n),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// download streams the model into a temporary file next to the target and
// renames it into place once complete.
func (p *Provider) download(ctx context.Context) (int64, error) {
	dir := filepath.Dir(p.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create model directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch model: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch model: bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p.cfg.Path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.cfg.Path); err != nil {
		return 0, fmt.Errorf("install model: %w", err)
	}
	return n, nil
}
