// Package api provides the REST API server for polydrum
package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/polydrum/pkg/errkind"
	"github.com/james-see/polydrum/pkg/midi"
	"github.com/james-see/polydrum/pkg/pattern"
	"github.com/james-see/polydrum/pkg/render"
	"github.com/james-see/polydrum/pkg/synth"
)

// @title Polydrum API
// @version 1.0
// @description API for sanitizing drum patterns and exporting them as MIDI and WAV
// @host localhost:8080
// @BasePath /api/v1

// maxUpload bounds request bodies and uploaded MIDI files.
const maxUpload = 8 << 20

// Server serves the pattern and export endpoints.
type Server struct {
	renderer   *render.Renderer
	defaultKit pattern.Kit
	logger     *slog.Logger
}

// NewServer creates a server that renders with r and uses kit when a
// request does not name one.
func NewServer(r *render.Renderer, kit pattern.Kit, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{renderer: r, defaultKit: kit, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/kits", s.listKits)
		v1.GET("/instruments", listInstruments)
		v1.GET("/time-signatures", listTimeSignatures)
		v1.POST("/patterns/sanitize", s.handleSanitize)
		v1.POST("/export/midi", s.handleExportMIDI)
		v1.POST("/export/wav", s.handleExportWAV)
		v1.POST("/import/midi", s.handleImportMIDI)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Run starts the API server on the specified port
func (s *Server) Run(port int) error {
	s.logger.Info("api server listening", "port", port)
	return s.Router().Run(fmt.Sprintf(":%d", port))
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "polydrum",
	})
}

// listKits godoc
// @Summary List kits
// @Description Returns the available drum kits and the server default
// @Tags info
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/kits [get]
func (s *Server) listKits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kits":    pattern.Kits,
		"default": s.defaultKit,
	})
}

// listInstruments godoc
// @Summary List instruments
// @Description Returns the drum voices with their General MIDI keys and sample file names
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]interface{}
// @Router /api/v1/instruments [get]
func listInstruments(c *gin.Context) {
	out := make([]gin.H, 0, pattern.NumInstruments)
	for _, inst := range pattern.Instruments {
		out = append(out, gin.H{
			"name":   inst,
			"midi":   midi.Key(inst),
			"sample": synth.SampleFiles[inst],
		})
	}
	c.JSON(http.StatusOK, gin.H{"instruments": out})
}

// listTimeSignatures godoc
// @Summary List time signatures
// @Description Returns the preset time signatures
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/time-signatures [get]
func listTimeSignatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timeSignatures": pattern.CommonTimeSignatures})
}

// handleSanitize godoc
// @Summary Sanitize a pattern
// @Description Repairs generator output: rounds steps, drops out-of-range notes, clamps velocities and removes duplicates
// @Tags patterns
// @Accept json
// @Produce json
// @Param pattern body pattern.RawPattern true "Raw pattern"
// @Success 200 {object} pattern.Pattern
// @Failure 422 {object} map[string]string
// @Router /api/v1/patterns/sanitize [post]
func (s *Server) handleSanitize(c *gin.Context) {
	p, ok := s.readPattern(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// handleExportMIDI godoc
// @Summary Export MIDI
// @Description Sanitizes a pattern and returns it as a Standard MIDI File
// @Tags export
// @Accept json
// @Produce audio/midi
// @Param pattern body pattern.RawPattern true "Raw pattern"
// @Success 200 {file} binary
// @Failure 422 {object} map[string]string
// @Router /api/v1/export/midi [post]
func (s *Server) handleExportMIDI(c *gin.Context) {
	p, ok := s.readPattern(c)
	if !ok {
		return
	}
	data, err := s.renderer.ExportMIDI(p)
	if err != nil {
		s.fail(c, err)
		return
	}
	attachment(c, "pattern.mid", "audio/midi", data)
}

// handleExportWAV godoc
// @Summary Export WAV
// @Description Sanitizes a pattern, renders one pass offline and returns 16-bit PCM WAV
// @Tags export
// @Accept json
// @Produce audio/wav
// @Param pattern body pattern.RawPattern true "Raw pattern"
// @Param kit query string false "Kit (ACOUSTIC, ELECTRONIC, INDUSTRIAL)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/export/wav [post]
func (s *Server) handleExportWAV(c *gin.Context) {
	kit := s.defaultKit
	if q := c.Query("kit"); q != "" {
		k, err := pattern.ParseKit(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kit = k
	}

	p, ok := s.readPattern(c)
	if !ok {
		return
	}
	data, err := s.renderer.ExportWAV(c.Request.Context(), p, kit)
	if err != nil {
		s.fail(c, err)
		return
	}
	attachment(c, "pattern-"+strings.ToLower(string(kit))+".wav", "audio/wav", data)
}

// handleImportMIDI godoc
// @Summary Import MIDI
// @Description Upload a MIDI drum file and receive the quantized pattern
// @Tags patterns
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file to import"
// @Param subdivisions query int false "Steps per beat (default: 4)"
// @Success 200 {object} pattern.Pattern
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/import/midi [post]
func (s *Server) handleImportMIDI(c *gin.Context) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer func() { _ = file.Close() }()

	// Read file content
	data, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	opts := midi.ImportOptions{Description: "imported from " + filepath.Base(header.Filename)}
	if q := c.Query("subdivisions"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 32 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subdivisions must be between 1 and 32"})
			return
		}
		opts.SubdivisionsPerBeat = n
	}

	p, err := midi.Import(data, opts)
	if err != nil {
		if !errkind.Is(err, errkind.KindGenerationData) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) readPattern(c *gin.Context) (*pattern.Pattern, bool) {
	p, err := pattern.Decode(io.LimitReader(c.Request.Body, maxUpload))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return p, true
}

// fail maps error kinds to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errkind.Is(err, errkind.KindGenerationData):
		status = http.StatusUnprocessableEntity
	case errkind.Is(err, errkind.KindResourceLoad):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Request.URL.Path, "status", status, "err", err)
	}
	c.JSON(status, gin.H{"error": errkind.Message(err)})
}

func attachment(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	c.Data(http.StatusOK, contentType, data)
}
