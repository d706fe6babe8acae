package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", c.Port)
	assert.Equal(t, ":5000", c.Addr())
	assert.Equal(t, "/tmp/u2net.onnx", c.ModelPath)
	assert.Contains(t, c.ModelURL, "u2net.onnx")
	assert.Equal(t, time.Duration(0), c.DownloadTimeout)
	assert.Equal(t, int64(32<<20), c.MaxUploadBytes())
	assert.Equal(t, int64(178956970), c.MaxImagePixels)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.False(t, c.PreloadModel)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MODEL_PATH", "/var/cache/models/u2net.onnx")
	t.Setenv("PRELOAD_MODEL", "true")
	t.Setenv("DOWNLOAD_TIMEOUT", "2m")
	t.Setenv("MAX_UPLOAD_MB", "8")
	t.Setenv("MAX_IMAGE_PIXELS", "4000000")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, "/var/cache/models/u2net.onnx", c.ModelPath)
	assert.True(t, c.PreloadModel)
	assert.Equal(t, 2*time.Minute, c.DownloadTimeout)
	assert.Equal(t, int64(8<<20), c.MaxUploadBytes())
	assert.Equal(t, int64(4000000), c.MaxImagePixels)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "not a number", key: "MAX_UPLOAD_MB", value: "lots"},
		{name: "zero upload", key: "MAX_UPLOAD_MB", value: "0"},
		{name: "zero pixel limit", key: "MAX_IMAGE_PIXELS", value: "0"},
		{name: "negative threads", key: "ONNX_THREADS", value: "-1"},
		{name: "bad duration", key: "DOWNLOAD_TIMEOUT", value: "soon"},
		{name: "unknown gin mode", key: "GIN_MODE", value: "turbo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
