package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kterao/paperbase/internal/api/middleware"
	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/repository"
	"github.com/kterao/paperbase/internal/service"
	"github.com/kterao/paperbase/internal/storage"
)

// DocumentHandler handles document upload, retrieval, and lifecycle endpoints.
type DocumentHandler struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	pipeline  *service.PipelineService
	indexer   *service.IndexerService
	archive   *storage.DocumentArchive // nil when object storage is disabled
	uploadDir string
	maxSizeMB int64
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	pipeline *service.PipelineService,
	indexer *service.IndexerService,
	archive *storage.DocumentArchive,
	uploadDir string,
	maxSizeMB int64,
) *DocumentHandler {
	return &DocumentHandler{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		pipeline:  pipeline,
		indexer:   indexer,
		archive:   archive,
		uploadDir: uploadDir,
		maxSizeMB: maxSizeMB,
	}
}

// Upload handles POST /api/v1/documents. It stages the file locally, archives
// it to object storage when enabled, and queues a processing job.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file: " + err.Error(),
		})
		return
	}

	if h.maxSizeMB > 0 && file.Size > h.maxSizeMB*1024*1024 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds maximum upload size",
		})
		return
	}

	docID := uuid.New().String()
	filename := filepath.Base(file.Filename)

	if err := os.MkdirAll(filepath.Join(h.uploadDir, docID), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to prepare upload directory: " + err.Error(),
		})
		return
	}
	localPath := filepath.Join(h.uploadDir, docID, filename)

	if err := c.SaveUploadedFile(file, localPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save file: " + err.Error(),
		})
		return
	}

	doc := &domain.Document{
		ID:       docID,
		Filename: filename,
		FilePath: localPath,
	}

	if h.archive != nil {
		reader, err := os.Open(localPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read staged file: " + err.Error(),
			})
			return
		}
		key, err := h.archive.Store(c.Request.Context(), docID, filename, reader, file.Size)
		reader.Close()
		if err != nil {
			middleware.GetLogger(c).WithError(err).Warn("failed to archive document, continuing with local copy")
		} else {
			doc.StorageKey = key
		}
	}

	if err := h.docRepo.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create document: " + err.Error(),
		})
		return
	}

	jobID, err := h.pipeline.CreateJob(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue processing job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"doc_id": docID,
		"job_id": jobID,
		"status": "uploaded",
	})
}

// Get handles GET /api/v1/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"document": doc}
	if meta, err := h.docRepo.GetMetadata(c.Request.Context(), doc.ID); err == nil {
		resp["metadata"] = meta
	}
	if h.archive != nil && doc.StorageKey != "" {
		resp["download_url"] = h.archive.URL(doc.StorageKey)
	}

	c.JSON(http.StatusOK, resp)
}

// List handles GET /api/v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.docRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(docs),
	})
}

// Delete handles DELETE /api/v1/documents/:id. Vectors, relational rows, and
// the archived copy are all removed.
func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("id")

	doc, err := h.docRepo.GetByID(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.indexer.DeleteDocument(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete vectors: " + err.Error(),
		})
		return
	}

	if err := h.docRepo.Delete(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete document: " + err.Error(),
		})
		return
	}

	if h.archive != nil && doc.StorageKey != "" {
		if err := h.archive.Remove(c.Request.Context(), doc.StorageKey); err != nil {
			middleware.GetLogger(c).WithError(err).Warn("failed to remove archived copy")
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": docID})
}

// metadataRequest is the caller-supplied metadata payload.
type metadataRequest struct {
	Title    *string  `json:"title"`
	Authors  []string `json:"authors"`
	Journal  *string  `json:"journal"`
	Year     *int     `json:"year"`
	Abstract *string  `json:"abstract"`
	DOI      *string  `json:"doi"`
}

// PutMetadata handles PUT /api/v1/documents/:id/metadata. Caller-supplied
// metadata carries the caller provenance marker and is never overwritten by
// the extraction step.
func (h *DocumentHandler) PutMetadata(c *gin.Context) {
	docID := c.Param("id")

	if _, err := h.docRepo.GetByID(c.Request.Context(), docID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	meta := &domain.Metadata{
		DocumentID: docID,
		Title:      req.Title,
		Authors:    req.Authors,
		Journal:    req.Journal,
		Year:       req.Year,
		Abstract:   req.Abstract,
		DOI:        req.DOI,
		Source:     domain.MetadataSourceCaller,
	}

	if err := h.docRepo.UpsertMetadata(c.Request.Context(), meta); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store metadata: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, meta)
}

// ListChunks handles GET /api/v1/documents/:id/chunks with an optional page
// query parameter.
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	docID := c.Param("id")

	var page *int
	if raw := c.Query("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page parameter"})
			return
		}
		page = &p
	}

	chunks, err := h.chunkRepo.ListByDocument(c.Request.Context(), docID, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"doc_id": docID,
		"chunks": chunks,
		"total":  len(chunks),
	})
}

// Rechunk handles POST /api/v1/documents/:id/rechunk. It queues a
// chunking-only job; without force=true a document that already has chunks
// is refused.
func (h *DocumentHandler) Rechunk(c *gin.Context) {
	docID := c.Param("id")
	force := c.Query("force") == "true"

	jobID, err := h.pipeline.TriggerChunkingOnly(c.Request.Context(), docID, force)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChunksExist):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Document already has chunks; use force=true to replace them",
			})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"doc_id": docID,
		"job_id": jobID,
	})
}
