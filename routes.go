package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pub-viewer/bibtex"
	"pub-viewer/config"
	"pub-viewer/services"
)

const (
	codeNotInitialized = "NOT_INITIALIZED"
	codeInternal       = "INTERNAL_ERROR"
	codeNoPersistence  = "PERSISTENCE_DISABLED"

	// room for multipart headers around the file itself
	multipartSlack = 1 << 20
)

func newRouter(cfg *config.Config, lib *services.Library, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	router.Use(rateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	router.MaxMultipartMemory = cfg.MaxUploadBytes + multipartSlack

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		snap, ok := lib.Current()
		body := gin.H{"status": "ok", "initialized": ok}
		if ok {
			body["publications"] = len(snap.Entries)
			body["source"] = snap.Source
			body["loaded_at"] = snap.LoadedAt
		}
		c.JSON(http.StatusOK, body)
	})

	setupPublicationRoutes(router, lib)
	setupEmbedRoutes(router, lib, log)
	setupUploadRoutes(router, cfg, lib, log)

	if cfg.StaticDir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.StaticDir))))
	}
	return router
}

func setupPublicationRoutes(router *gin.Engine, lib *services.Library) {
	router.GET("/publications", func(c *gin.Context) {
		snap, ok := lib.Current()
		if !ok {
			respondNotInitialized(c)
			return
		}
		c.JSON(http.StatusOK, snap.Entries)
	})
}

func setupEmbedRoutes(router *gin.Engine, lib *services.Library, log *zap.Logger) {
	router.GET("/embed-ssr", func(c *gin.Context) {
		snap, ok := lib.Current()
		if !ok {
			respondNotInitialized(c)
			return
		}
		var buf bytes.Buffer
		if err := services.RenderFragment(&buf, snap.Entries); err != nil {
			log.Error("Rendering embed fragment failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": codeInternal})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	})
}

func setupUploadRoutes(router *gin.Engine, cfg *config.Config, lib *services.Library, log *zap.Logger) {
	rg := router.Group("/")
	rg.Use(apiKeyAuthMiddleware(cfg))

	rg.POST("/upload", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxUploadBytes+multipartSlack)

		fh, err := c.FormFile("bibfile")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, log, &services.FileValidationError{Message: "File too large", Code: services.CodeFileTooLarge})
				return
			}
			respondError(c, log, &services.FileValidationError{Message: "No file uploaded", Code: services.CodeNoFile})
			return
		}
		log.Info("File upload received", zap.String("original_name", fh.Filename), zap.Int64("size", fh.Size))

		f, err := fh.Open()
		if err != nil {
			respondError(c, log, err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, cfg.MaxUploadBytes+1))
		if err != nil {
			respondError(c, log, err)
			return
		}

		snap, err := lib.Replace(c.Request.Context(), fh.Filename, data)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"publications": snap.Entries})
	})

	rg.GET("/uploads", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		history, err := lib.History(c.Request.Context(), limit)
		if errors.Is(err, services.ErrNoStore) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeNoPersistence})
			return
		}
		if err != nil {
			log.Error("Database query for upload history failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error", "code": codeInternal})
			return
		}
		c.JSON(http.StatusOK, history)
	})
}

func respondNotInitialized(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "Publications not yet initialized",
		"code":  codeNotInitialized,
	})
}

// respondError maps validation and parse errors to client errors; anything
// else is logged and reported as an internal error.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var fe *services.FileValidationError
	var pe *bibtex.ParseError
	switch {
	case errors.As(err, &fe):
		status := http.StatusBadRequest
		if fe.Code == services.CodeFileTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		log.Warn("Upload rejected", zap.String("code", fe.Code), zap.Error(err))
		c.JSON(status, gin.H{"error": fe.Message, "code": fe.Code})
	case errors.As(err, &pe):
		log.Warn("Upload rejected", zap.String("code", pe.Code), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": pe.Error(),
			"code":  pe.Code,
			"entry": pe.Entry,
			"line":  pe.Line,
		})
	default:
		log.Error("Error processing upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": codeInternal})
	}
}
