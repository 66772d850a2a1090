package api

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/adverant/nexus/pharmascan/internal/errors"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/gin-gonic/gin"
)

// multipart overhead allowed on top of the image itself
const formOverheadBytes = 64 * 1024

// ScanHandler accepts image uploads
type ScanHandler struct {
	processor processor.ScanProcessorInterface
	maxBytes  int64
	logger    *logging.Logger
}

func NewScanHandler(p processor.ScanProcessorInterface, maxBytes int64, logger *logging.Logger) *ScanHandler {
	return &ScanHandler{processor: p, maxBytes: maxBytes, logger: logger}
}

func (h *ScanHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.scan) // POST /api/scan
	rg.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"feature": "scan", "status": "ready"})
	})
}

func (h *ScanHandler) scan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+formOverheadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":  "file upload failed",
				"detail": fmt.Sprintf("file exceeds %d bytes", h.maxBytes),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file in request (form key: 'file')"})
		return
	}
	if fh.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":  "file upload failed",
			"detail": fmt.Sprintf("file exceeds %d bytes", h.maxBytes),
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload failed", "detail": err.Error()})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload failed", "detail": err.Error()})
		return
	}

	filename := fh.Filename
	if filename == "" {
		filename = "upload"
	}

	result, err := h.processor.ProcessScan(c.Request.Context(), &processor.ScanRequest{
		Filename: filename,
		Image:    data,
		Metadata: map[string]interface{}{"source": "upload"},
	})
	if err != nil {
		if errors.CodeOf(err) == errors.ErrorInvalidImage {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image", "detail": err.Error()})
			return
		}
		h.logger.Error("Scan failed", "filename", filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan processing failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}
