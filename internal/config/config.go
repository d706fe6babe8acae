package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from the environment. Every field has a default so the
// service starts with no configuration at all.
type Config struct {
	Port string `envconfig:"PORT" default:"5000"`

	ModelURL        string        `envconfig:"MODEL_URL" default:"https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2net.onnx"`
	ModelPath       string        `envconfig:"MODEL_PATH" default:"/tmp/u2net.onnx"`
	PreloadModel    bool          `envconfig:"PRELOAD_MODEL" default:"false"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"0s"`

	OnnxRuntimeLib string `envconfig:"ONNXRUNTIME_LIB"`
	OnnxThreads    int    `envconfig:"ONNX_THREADS" default:"0"`

	MaxUploadMB     int64         `envconfig:"MAX_UPLOAD_MB" default:"32"`
	MaxImagePixels  int64         `envconfig:"MAX_IMAGE_PIXELS" default:"178956970"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	GinMode         string        `envconfig:"GIN_MODE" default:"release"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH must not be empty")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels)
	}
	if c.OnnxThreads < 0 {
		return fmt.Errorf("ONNX_THREADS must not be negative, got %d", c.OnnxThreads)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("DOWNLOAD_TIMEOUT must not be negative, got %s", c.DownloadTimeout)
	}
	return nil
}

func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func (c Config) Addr() string {
	return ":" + c.Port
}
