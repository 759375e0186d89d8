package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/citytours/backend/internal/config"
	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/middleware"
	"github.com/citytours/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// in-memory part of a multipart body; larger parts spill to temp files
	multipartMemory = 32 << 20
	// headroom for form fields and part headers on top of the file bytes
	multipartOverhead = 1 << 20
)

// allowedPartTypes is the pre-filter on declared part types; the codec sniffs the bytes later.
var allowedPartTypes = map[string]bool{
	"image/jpeg":               true,
	"image/jpg":                true,
	"image/pjpeg":              true,
	"image/png":                true,
	"image/webp":               true,
	"image/gif":                true,
	"application/octet-stream": true,
}

type MediaHandler struct {
	mediaService *services.MediaService
	cfg          *config.Config
	log          zerolog.Logger
}

func NewMediaHandler(mediaService *services.MediaService, cfg *config.Config, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		cfg:          cfg,
		log:          logging.Component(log, "media-handler"),
	}
}

// Upload handles single and batch image upload
// POST /api/v1/media
// Multipart form: files[] or file (required), title, altText, tags, contextType, contextId (optional)
func (h *MediaHandler) Upload(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	maxBody := int64(h.cfg.MediaMaxFiles)*h.cfg.MediaMaxFileBytes + multipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   services.CodeValidation,
				"message": fmt.Sprintf("request body exceeds %d bytes", maxBody),
			})
			return
		}
		badRequest(c, "failed to parse multipart form")
		return
	}
	form := c.Request.MultipartForm
	defer form.RemoveAll()

	headers := append(append([]*multipart.FileHeader{}, form.File["files[]"]...), form.File["file"]...)
	if len(headers) == 0 {
		badRequest(c, "files[] or file is required")
		return
	}
	if len(headers) > h.cfg.MediaMaxFiles {
		badRequest(c, fmt.Sprintf("maximum %d files per upload", h.cfg.MediaMaxFiles))
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.cfg.MediaMaxFileBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   services.CodeValidation,
				"message": fmt.Sprintf("%s exceeds the %d byte file limit", fh.Filename, h.cfg.MediaMaxFileBytes),
			})
			return
		}
		declared := partType(fh)
		if declared != "" && !allowedPartTypes[declared] {
			badRequest(c, fmt.Sprintf("%s: content type %s is not allowed", fh.Filename, declared))
			return
		}
		data, err := readPart(fh)
		if err != nil {
			badRequest(c, fmt.Sprintf("failed to read %s", fh.Filename))
			return
		}
		files = append(files, services.UploadFile{
			OriginalName:     fh.Filename,
			DeclaredMimeType: declared,
			Data:             data,
		})
	}

	meta := services.UploadMetadata{
		Title:       formValue(form, "title"),
		AltText:     formValue(form, "altText"),
		Tags:        formValue(form, "tags"),
		ContextType: formValue(form, "contextType"),
		ContextID:   formValue(form, "contextId"),
	}

	result, err := h.mediaService.Upload(c.Request.Context(), files, userID, meta)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	switch {
	case result.Failed == 0:
		c.JSON(http.StatusCreated, result)
	case result.Succeeded > 0:
		c.JSON(http.StatusMultiStatus, result)
	default:
		first := result.Items[0]
		c.JSON(statusForCode(first.Code), gin.H{
			"error":     first.Code,
			"message":   first.Error,
			"items":     result.Items,
			"succeeded": 0,
			"failed":    result.Failed,
		})
	}
}

// List returns one page of the media library
// GET /api/v1/media?tags=a,b&contextType=tour&contextId=..&search=..&sortBy=createdAt&sortOrder=desc&limit=20&offset=0&mine=true
func (h *MediaHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 {
		badRequest(c, "limit must be a positive integer")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		badRequest(c, "offset must be a non-negative integer")
		return
	}

	var tags []string
	for _, raw := range c.QueryArray("tags") {
		tags = append(tags, strings.Split(raw, ",")...)
	}

	filter := services.ListFilter{
		Tags:        tags,
		ContextType: strings.TrimSpace(c.Query("contextType")),
		ContextID:   strings.TrimSpace(c.Query("contextId")),
		Search:      c.Query("search"),
		SortBy:      c.Query("sortBy"),
		SortOrder:   c.Query("sortOrder"),
		Limit:       limit,
		Offset:      offset,
	}
	if c.Query("mine") == "true" {
		filter.UploadedBy = c.GetString(middleware.UserIDKey)
	}

	page, err := h.mediaService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   page.Items,
		"total":   page.Total,
		"hasMore": page.HasMore,
		"limit":   limit,
		"offset":  offset,
	})
}

// Get returns a single media object
// GET /api/v1/media/:id
func (h *MediaHandler) Get(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	obj, err := h.mediaService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, obj)
}

type updateMediaRequest struct {
	Title   *string  `json:"title" binding:"omitempty,max=255"`
	AltText *string  `json:"altText" binding:"omitempty,max=500"`
	Tags    []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
}

// Update edits title, altText and tags; an empty string clears a field
// PATCH /api/v1/media/:id
func (h *MediaHandler) Update(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}

	var req updateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Title == nil && req.AltText == nil && req.Tags == nil {
		badRequest(c, "at least one of title, altText, tags is required")
		return
	}

	obj, err := h.mediaService.UpdateMetadata(c.Request.Context(), id, req.Title, req.AltText, req.Tags)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, obj)
}

// Delete removes a media object and its files
// DELETE /api/v1/media/:id
func (h *MediaHandler) Delete(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	if err := h.mediaService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Usage reports the caller's storage quota
// GET /api/v1/media/usage
func (h *MediaHandler) Usage(c *gin.Context) {
	usage, err := h.mediaService.Usage(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func mediaID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid media ID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func partType(fh *multipart.FileHeader) string {
	raw := fh.Header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
