package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/metrics"
	"github.com/citytours/backend/internal/models"
	"github.com/citytours/backend/internal/pkg/imagecodec"
	"github.com/citytours/backend/pkg/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxTitleRunes     = 255
	maxAltTextRunes   = 500
	maxTags           = 20
	maxTagRunes       = 50
	maxContextIDRunes = 64
)

// ImageCodec validates and transcodes uploads.
type ImageCodec interface {
	Detect(data []byte) (string, bool)
	Validate(data []byte) bool
	Process(data []byte, name string) (*imagecodec.Result, error)
}

// FileStore holds the optimized image and thumbnail of each media object.
type FileStore interface {
	Save(ctx context.Context, name string, optimized, thumbnail []byte) (string, string, error)
	Delete(ctx context.Context, name string) error
}

// MediaRepository persists media metadata.
type MediaRepository interface {
	Create(ctx context.Context, obj *MediaObject) error
	Get(ctx context.Context, id uuid.UUID) (*MediaObject, error)
	List(ctx context.Context, f ListFilter) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, upd MetadataUpdate) (*MediaObject, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SumSizeByUser(ctx context.Context, userID string) (int64, error)
}

// UploadFile is one in-memory file handed over by the HTTP layer.
type UploadFile struct {
	OriginalName     string
	DeclaredMimeType string
	Data             []byte
}

// UploadMetadata holds the raw form fields shared by every file of a batch.
type UploadMetadata struct {
	Title       string
	AltText     string
	Tags        string
	ContextType string
	ContextID   string
}

// UploadItemResult reports the outcome of one file.
type UploadItemResult struct {
	Index        int          `json:"index"`
	OriginalName string       `json:"originalName"`
	Media        *MediaObject `json:"media,omitempty"`
	Code         string       `json:"code,omitempty"`
	Error        string       `json:"error,omitempty"`
	Err          error        `json:"-"`
}

type UploadBatchResult struct {
	Items     []UploadItemResult `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// Media returns the objects created by the batch, in input order.
func (r *UploadBatchResult) Media() []MediaObject {
	out := make([]MediaObject, 0, r.Succeeded)
	for _, item := range r.Items {
		if item.Media != nil {
			out = append(out, *item.Media)
		}
	}
	return out
}

type preparedMetadata struct {
	title       *string
	altText     *string
	tags        []string
	contextType *string
	contextID   *string
}

// MediaService runs the upload pipeline and the media library operations.
type MediaService struct {
	store MediaRepository
	files FileStore
	codec ImageCodec
	quota *QuotaService
	log   zerolog.Logger
}

func NewMediaService(store MediaRepository, files FileStore, codec ImageCodec, quota *QuotaService, log zerolog.Logger) *MediaService {
	return &MediaService{
		store: store,
		files: files,
		codec: codec,
		quota: quota,
		log:   logging.Component(log, "media-service"),
	}
}

// Upload runs every file through validate, quota check, process, store and persist.
// Files are handled one after another and independently: a failure aborts only that
// file. The quota is re-read for each file so earlier files of the batch count.
// Invalid metadata rejects the whole batch before any file is touched.
func (s *MediaService) Upload(ctx context.Context, files []UploadFile, userID string, meta UploadMetadata) (*UploadBatchResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "userId", Message: "is required"}
	}
	if len(files) == 0 {
		return nil, &ValidationError{Field: "files", Message: "at least one file is required"}
	}
	prepared, err := prepareMetadata(meta)
	if err != nil {
		return nil, err
	}

	result := &UploadBatchResult{Items: make([]UploadItemResult, 0, len(files))}
	for i, f := range files {
		item := UploadItemResult{Index: i, OriginalName: f.OriginalName}
		obj, err := s.uploadOne(ctx, f, userID, prepared)
		if err != nil {
			item.Err = err
			item.Code = ErrorCode(err)
			item.Error = PublicMessage(err)
			result.Failed++
			metrics.RecordUpload(item.Code, 0)
			s.log.Warn().Err(err).Str("user_id", userID).Str("original_name", f.OriginalName).
				Str("code", item.Code).Msg("upload rejected")
		} else {
			item.Media = obj
			result.Succeeded++
			metrics.RecordUpload("success", obj.SizeBytes)
			s.log.Info().Str("media_id", obj.ID.String()).Str("user_id", userID).
				Int64("size_bytes", obj.SizeBytes).Int("width", obj.Width).Int("height", obj.Height).
				Msg("media stored")
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (s *MediaService) uploadOne(ctx context.Context, f UploadFile, userID string, meta preparedMetadata) (*MediaObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Validated
	detected, ok := s.codec.Detect(f.Data)
	if !ok || !s.codec.Validate(f.Data) {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("unsupported or corrupt image (detected %s)", detected)}
	}
	if declared := normalizeMime(f.DeclaredMimeType); declared != "" && declared != detected {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("declared type %s does not match content %s", declared, detected)}
	}

	// QuotaChecked
	if err := s.quota.Check(ctx, userID); err != nil {
		return nil, err
	}

	// Processed
	name := uuid.New().String()
	start := time.Now()
	res, err := s.codec.Process(f.Data, name)
	metrics.RecordProcessing(time.Since(start).Seconds())
	if err != nil {
		return nil, &ProcessingError{Err: err}
	}
	filename := name + res.Ext

	// Stored
	url, thumbURL, err := s.files.Save(ctx, filename, res.Optimized, res.Thumbnail)
	if err != nil {
		return nil, err
	}

	// Persisted
	obj := &MediaObject{
		Filename:     filename,
		OriginalName: validation.Truncate(validation.SanitizeString(f.OriginalName), maxTitleRunes),
		MimeType:     res.MimeType,
		SizeBytes:    res.SizeBytes,
		Width:        res.Width,
		Height:       res.Height,
		URL:          url,
		ThumbnailURL: thumbURL,
		Title:        meta.title,
		AltText:      meta.altText,
		Tags:         append([]string(nil), meta.tags...),
		ContextType:  meta.contextType,
		ContextID:    meta.contextID,
		UploadedBy:   userID,
	}
	if obj.Tags == nil {
		obj.Tags = []string{}
	}
	if err := s.store.Create(ctx, obj); err != nil {
		// the row never existed, so the files would be unreachable
		if derr := s.files.Delete(context.WithoutCancel(ctx), filename); derr != nil {
			s.log.Error().Err(derr).Str("filename", filename).Msg("failed to remove files after insert failure")
		} else {
			s.log.Warn().Str("filename", filename).Msg("removed stored files after insert failure")
		}
		return nil, err
	}
	return obj, nil
}

func (s *MediaService) Get(ctx context.Context, id uuid.UUID) (*MediaObject, error) {
	return s.store.Get(ctx, id)
}

// List validates sort options and normalizes the tag filter before querying.
func (s *MediaService) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	if !ValidSortBy(f.SortBy) {
		return nil, &ValidationError{Field: "sortBy", Message: "must be one of createdAt, title, sizeBytes"}
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	if f.SortOrder == "" {
		f.SortOrder = SortDesc
	}
	if f.SortOrder != SortAsc && f.SortOrder != SortDesc {
		return nil, &ValidationError{Field: "sortOrder", Message: "must be asc or desc"}
	}
	if f.ContextType != "" && !models.MediaContextType(f.ContextType).Valid() {
		return nil, &ValidationError{Field: "contextType", Message: "must be one of tour, poi, standalone"}
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, &ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	f.Tags = validation.DedupeTags(f.Tags)
	return s.store.List(ctx, f)
}

// UpdateMetadata sanitizes and applies title, altText and tags. Derived fields never change.
func (s *MediaService) UpdateMetadata(ctx context.Context, id uuid.UUID, title, altText *string, tags []string) (*MediaObject, error) {
	var upd MetadataUpdate
	if title != nil {
		clean := validation.SanitizeText(*title, maxTitleRunes)
		upd.Title = &clean
	}
	if altText != nil {
		clean := validation.SanitizeText(*altText, maxAltTextRunes)
		upd.AltText = &clean
	}
	if tags != nil {
		clean, err := checkTags(validation.DedupeTags(tags))
		if err != nil {
			return nil, err
		}
		upd.Tags = &clean
	}
	obj, err := s.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("media_id", id.String()).Msg("media metadata updated")
	return obj, nil
}

// Delete removes both files, then the row. The row is authoritative, so a file that cannot
// be removed is logged and left behind while the delete still succeeds.
func (s *MediaService) Delete(ctx context.Context, id uuid.UUID) error {
	obj, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, obj.Filename); err != nil {
		s.log.Warn().Err(err).Str("media_id", id.String()).Str("filename", obj.Filename).
			Msg("files could not be removed, deleting row anyway")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("media_id", id.String()).Msg("media deleted")
	return nil
}

func (s *MediaService) Usage(ctx context.Context, userID string) (*QuotaUsage, error) {
	return s.quota.Usage(ctx, userID)
}

func prepareMetadata(meta UploadMetadata) (preparedMetadata, error) {
	var out preparedMetadata
	if title := validation.SanitizeText(meta.Title, maxTitleRunes); title != "" {
		out.title = &title
	}
	if alt := validation.SanitizeText(meta.AltText, maxAltTextRunes); alt != "" {
		out.altText = &alt
	}

	tags, err := checkTags(validation.SplitTags(meta.Tags))
	if err != nil {
		return out, err
	}
	out.tags = tags

	contextType := strings.ToLower(strings.TrimSpace(meta.ContextType))
	contextID := strings.TrimSpace(meta.ContextID)
	switch {
	case contextType == "" && contextID == "":
	case contextType == "":
		return out, &ValidationError{Field: "contextId", Message: "requires contextType"}
	case !models.MediaContextType(contextType).Valid():
		return out, &ValidationError{Field: "contextType", Message: "must be one of tour, poi, standalone"}
	case contextType == string(models.MediaContextStandalone) && contextID != "":
		return out, &ValidationError{Field: "contextId", Message: "must be empty for standalone media"}
	case contextType != string(models.MediaContextStandalone) && contextID == "":
		return out, &ValidationError{Field: "contextId", Message: "is required for " + contextType + " media"}
	case len([]rune(contextID)) > maxContextIDRunes:
		return out, &ValidationError{Field: "contextId", Message: "is too long"}
	}
	if contextType != "" {
		out.contextType = &contextType
	}
	if contextID != "" {
		out.contextID = &contextID
	}
	return out, nil
}

func checkTags(tags []string) ([]string, error) {
	if len(tags) > maxTags {
		return nil, &ValidationError{Field: "tags", Message: fmt.Sprintf("at most %d tags allowed", maxTags)}
	}
	for _, tag := range tags {
		if !validation.ValidTag(tag, maxTagRunes) {
			return nil, &ValidationError{Field: "tags", Message: fmt.Sprintf("invalid tag %q", tag)}
		}
	}
	return tags, nil
}

func normalizeMime(declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	case "application/octet-stream":
		return ""
	}
	return declared
}
