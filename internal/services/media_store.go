package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/citytours/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaObject is the API shape of one stored image.
type MediaObject struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Title        *string   `json:"title"`
	AltText      *string   `json:"altText"`
	Tags         []string  `json:"tags"`
	ContextType  *string   `json:"contextType"`
	ContextID    *string   `json:"contextId"`
	UploadedBy   string    `json:"uploadedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sort keys accepted by List.
const (
	SortByCreatedAt = "createdAt"
	SortBySizeBytes = "sizeBytes"
	SortByTitle     = "title"
	SortAsc         = "asc"
	SortDesc        = "desc"
)

var sortColumns = map[string]string{
	SortByCreatedAt: "created_at",
	SortByTitle:     "COALESCE(title, '')",
	SortBySizeBytes: "size_bytes",
}

// ValidSortBy reports whether key is an accepted sort key.
func ValidSortBy(key string) bool {
	_, ok := sortColumns[key]
	return ok
}

// ListFilter narrows a media listing. Zero values mean "no constraint";
// Limit <= 0 returns every match.
type ListFilter struct {
	Tags        []string
	ContextType string
	ContextID   string
	Search      string
	UploadedBy  string
	SortBy      string
	SortOrder   string
	Limit       int
	Offset      int
}

type ListResult struct {
	Items   []MediaObject `json:"items"`
	Total   int64         `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// MetadataUpdate carries the user-editable fields; nil leaves a field unchanged.
type MetadataUpdate struct {
	Title   *string
	AltText *string
	Tags    *[]string
}

// MediaStore persists media metadata. It never touches the filesystem.
type MediaStore struct {
	db *gorm.DB
}

func NewMediaStore(db *gorm.DB) *MediaStore {
	return &MediaStore{db: db}
}

// Create inserts obj and its tags, filling in ID and timestamps.
func (s *MediaStore) Create(ctx context.Context, obj *MediaObject) error {
	rec := toRecord(obj)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create media record: %w", err)
	}
	obj.ID = rec.ID
	obj.CreatedAt = rec.CreatedAt
	obj.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *MediaStore) Get(ctx context.Context, id uuid.UUID) (*MediaObject, error) {
	var rec models.MediaRecord
	err := s.db.WithContext(ctx).Preload("Tags", orderedTags).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "media", ID: id.String()}
		}
		return nil, fmt.Errorf("get media record: %w", err)
	}
	obj := toMediaObject(&rec)
	return &obj, nil
}

// List returns one page of matches plus the total match count.
func (s *MediaStore) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count media records: %w", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = sortColumns[SortByCreatedAt]
	}
	direction := "DESC"
	if strings.EqualFold(f.SortOrder, SortAsc) {
		direction = "ASC"
	}

	query := s.filtered(ctx, f).
		Preload("Tags", orderedTags).
		Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}

	var recs []models.MediaRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list media records: %w", err)
	}

	items := make([]MediaObject, len(recs))
	for i := range recs {
		items[i] = toMediaObject(&recs[i])
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return &ListResult{
		Items:   items,
		Total:   total,
		HasMore: int64(offset+len(items)) < total,
	}, nil
}

func (s *MediaStore) filtered(ctx context.Context, f ListFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.MediaRecord{})
	if len(f.Tags) > 0 {
		q = q.Where("id IN (?)", s.db.Model(&models.MediaTag{}).Select("media_id").Where("tag IN ?", f.Tags))
	}
	if f.ContextType != "" {
		q = q.Where("context_type = ?", f.ContextType)
	}
	if f.ContextID != "" {
		q = q.Where("context_id = ?", f.ContextID)
	}
	if f.UploadedBy != "" {
		q = q.Where("uploaded_by = ?", f.UploadedBy)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		q = q.Where(
			"(LOWER(COALESCE(title, '')) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(alt_text, '')) LIKE ? ESCAPE '\\' OR LOWER(original_name) LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern,
		)
	}
	return q
}

// Update applies the provided fields and always advances updatedAt.
func (s *MediaStore) Update(ctx context.Context, id uuid.UUID, upd MetadataUpdate) (*MediaObject, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.MediaRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "media", ID: id.String()}
			}
			return err
		}

		now := models.NowFunc()
		if !now.After(rec.UpdatedAt) {
			now = rec.UpdatedAt.Add(time.Microsecond)
		}
		updates := map[string]interface{}{"updated_at": now}
		if upd.Title != nil {
			updates["title"] = nullIfEmpty(*upd.Title)
		}
		if upd.AltText != nil {
			updates["alt_text"] = nullIfEmpty(*upd.AltText)
		}
		if err := tx.Model(&models.MediaRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		if upd.Tags != nil {
			if err := tx.Where("media_id = ?", id).Delete(&models.MediaTag{}).Error; err != nil {
				return err
			}
			if tags := tagRows(id, *upd.Tags); len(tags) > 0 {
				if err := tx.Create(&tags).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update media record: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the row and its tags.
func (s *MediaStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("media_id = ?", id).Delete(&models.MediaTag{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.MediaRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "media", ID: id.String()}
		}
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete media record: %w", err)
	}
	return nil
}

// SumSizeByUser returns the stored bytes owned by userID.
func (s *MediaStore) SumSizeByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.MediaRecord{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Where("uploaded_by = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum media size: %w", err)
	}
	return total, nil
}

func orderedTags(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagRows(id uuid.UUID, tags []string) []models.MediaTag {
	rows := make([]models.MediaTag, 0, len(tags))
	for i, tag := range tags {
		rows = append(rows, models.MediaTag{MediaID: id, Tag: tag, Position: i})
	}
	return rows
}

func toRecord(obj *MediaObject) *models.MediaRecord {
	rec := &models.MediaRecord{
		ID:           obj.ID,
		Filename:     obj.Filename,
		OriginalName: obj.OriginalName,
		MimeType:     obj.MimeType,
		SizeBytes:    obj.SizeBytes,
		Width:        obj.Width,
		Height:       obj.Height,
		URL:          obj.URL,
		ThumbnailURL: obj.ThumbnailURL,
		Title:        obj.Title,
		AltText:      obj.AltText,
		ContextID:    obj.ContextID,
		UploadedBy:   obj.UploadedBy,
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if obj.ContextType != nil {
		ct := models.MediaContextType(*obj.ContextType)
		rec.ContextType = &ct
	}
	rec.Tags = tagRows(rec.ID, obj.Tags)
	return rec
}

func toMediaObject(rec *models.MediaRecord) MediaObject {
	obj := MediaObject{
		ID:           rec.ID,
		Filename:     rec.Filename,
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		SizeBytes:    rec.SizeBytes,
		Width:        rec.Width,
		Height:       rec.Height,
		URL:          rec.URL,
		ThumbnailURL: rec.ThumbnailURL,
		Title:        rec.Title,
		AltText:      rec.AltText,
		ContextID:    rec.ContextID,
		UploadedBy:   rec.UploadedBy,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		Tags:         make([]string, 0, len(rec.Tags)),
	}
	if rec.ContextType != nil {
		ct := string(*rec.ContextType)
		obj.ContextType = &ct
	}
	for _, t := range rec.Tags {
		obj.Tags = append(obj.Tags, t.Tag)
	}
	return obj
}
