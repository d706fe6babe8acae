package handlers

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brownie44l1/rembg-api/internal/model"
	"github.com/Brownie44l1/rembg-api/internal/pipeline"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	ErrNoFilePart     = errors.New("No file part")
	ErrNoSelectedFile = errors.New("No selected file")
	ErrTooLarge       = errors.New("Upload too large")
)

//go:embed static/index.html
var indexHTML []byte

// ModelProvider hands out the shared segmentation model, loading it on first
// use.
type ModelProvider interface {
	Get(ctx context.Context) (model.Segmenter, error)
	Loaded() bool
}

// Limits bound what a single request may make the server hold in memory.
type Limits struct {
	// UploadBytes caps the request body; 0 disables the cap.
	UploadBytes int64
	// ImagePixels caps the declared width×height of the upload; 0 uses
	// pipeline.DefaultMaxPixels.
	ImagePixels int64
}

type Handler struct {
	provider ModelProvider
	logger   *zap.Logger
	limits   Limits
}

func NewHandler(provider ModelProvider, logger *zap.Logger, limits Limits) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		provider: provider,
		logger:   logger,
		limits:   limits,
	}
}

// upload is the "file" part of a /process request.
type upload struct {
	Filename string
	Data     []byte
}

// options are the boolean form flags; only the exact string "true" enables
// one.
type options struct {
	RemoveBG bool
	Upscale  bool
	Enhance  bool
}

func parseOptions(values map[string]string) options {
	return options{
		RemoveBG: values["remove_bg"] == "true",
		Upscale:  values["upscale"] == "true",
		Enhance:  values["enhance"] == "true",
	}
}

func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.provider.Loaded(),
	})
}

// Process runs the uploaded image through the requested stages and replies
// with a PNG attachment.
func (h *Handler) Process(c *gin.Context) {
	file, values, err := h.readForm(c)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.fail(c, status, err)
		return
	}

	opts := parseOptions(values)
	h.logger.Info("processing upload",
		zap.String("request_id", RequestID(c)),
		zap.String("filename", file.Filename),
		zap.Int("size", len(file.Data)),
		zap.Bool("remove_bg", opts.RemoveBG),
		zap.Bool("enhance", opts.Enhance),
		zap.Bool("upscale", opts.Upscale))

	out, err := h.process(c.Request.Context(), file, opts)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", attachment("processed_"+file.Filename))
	c.Data(http.StatusOK, "image/png", out)
}

func (h *Handler) process(ctx context.Context, file *upload, opts options) ([]byte, error) {
	seg, err := h.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	img, err := pipeline.Decode(bytes.NewReader(file.Data), h.limits.ImagePixels)
	if err != nil {
		return nil, err
	}

	var final *image.NRGBA
	if opts.RemoveBG {
		final, err = pipeline.NewRemover(seg, h.logger).Remove(ctx, img)
		if err != nil {
			return nil, err
		}
	} else {
		final = img
	}

	if opts.Enhance {
		start := time.Now()
		final = pipeline.Enhance(final)
		h.logger.Debug("image enhanced", zap.Duration("duration", time.Since(start)))
	}

	// Upscaling is left to the client.
	if opts.Upscale {
		h.logger.Debug("upscale requested, skipped server-side")
	}

	var buf bytes.Buffer
	if err := pipeline.EncodePNG(&buf, final); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readForm streams the multipart body and returns the first "file" part that
// carries a filename parameter, along with the first value of every plain
// field. A "file" part whose filename is empty is ErrNoSelectedFile; a plain
// field named "file" does not count as a file.
func (h *Handler) readForm(c *gin.Context) (*upload, map[string]string, error) {
	if limit := h.limits.UploadBytes; limit > 0 {
		if c.Request.ContentLength > limit {
			return nil, nil, ErrTooLarge
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, nil, ErrNoFilePart
	}

	var file *upload
	values := make(map[string]string)
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, formError(err)
		}

		name := part.FormName()
		filename, isFile := partFilename(part)
		switch {
		case name == "":
		case isFile:
			if name == "file" && file == nil {
				data, err := io.ReadAll(part)
				if err != nil {
					return nil, nil, formError(err)
				}
				file = &upload{Filename: filename, Data: data}
			}
		default:
			data, err := io.ReadAll(part)
			if err != nil {
				return nil, nil, formError(err)
			}
			if _, seen := values[name]; !seen {
				values[name] = string(data)
			}
		}
		_ = part.Close()
	}

	if file == nil {
		return nil, nil, ErrNoFilePart
	}
	if file.Filename == "" {
		return nil, nil, ErrNoSelectedFile
	}
	return file, values, nil
}

// partFilename reports the filename parameter of a part's
// Content-Disposition and whether the parameter is present at all.
// multipart.Part.FileName cannot tell an empty filename from a missing one.
func partFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	filename, ok := params["filename"]
	if !ok || filename == "" {
		return "", ok
	}
	return filepath.Base(filename), true
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrTooLarge
	}
	return ErrNoFilePart
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	fields := []zap.Field{
		zap.String("request_id", RequestID(c)),
		zap.Int("status", status),
		zap.Error(err),
	}
	switch {
	case status < http.StatusInternalServerError:
		h.logger.Info("request rejected", fields...)
	case errors.Is(err, model.ErrModelUnavailable):
		h.logger.Error("model unavailable", fields...)
	case errors.Is(err, model.ErrInference):
		h.logger.Error("inference failed", fields...)
	case errors.Is(err, pipeline.ErrDecode):
		h.logger.Warn("undecodable upload", fields...)
	case errors.Is(err, pipeline.ErrEncode):
		h.logger.Error("png encoding failed", fields...)
	default:
		h.logger.Error("processing failed", fields...)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func attachment(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, quoteEscaper.Replace(filename))
}
