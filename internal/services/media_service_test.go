package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts quota reads and can fail inserts.
type countingRepo struct {
	*MediaStore
	sumCalls  int
	createErr error
}

func (r *countingRepo) SumSizeByUser(ctx context.Context, userID string) (int64, error) {
	r.sumCalls++
	return r.MediaStore.SumSizeByUser(ctx, userID)
}

func (r *countingRepo) Create(ctx context.Context, obj *MediaObject) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MediaStore.Create(ctx, obj)
}

// brokenFiles saves normally and fails every delete.
type brokenFiles struct {
	*StorageService
}

func (brokenFiles) Delete(context.Context, string) error {
	return &StorageError{Op: "delete", Err: errors.New("disk gone")}
}

type serviceFixture struct {
	svc     *MediaService
	repo    *countingRepo
	storage *StorageService
	dir     string
}

func newServiceFixture(t *testing.T, quotaBytes int64) *serviceFixture {
	t.Helper()
	cfg := testConfig(t)
	repo := &countingRepo{MediaStore: NewMediaStore(newTestDB(t))}
	storage := NewStorageService(cfg, nil, nopLogger())
	quota := NewQuotaService(repo, quotaBytes)
	return &serviceFixture{
		svc:     NewMediaService(repo, storage, testCodec(cfg), quota, nopLogger()),
		repo:    repo,
		storage: storage,
		dir:     cfg.UploadDir,
	}
}

// storedFiles lists every regular file under dir.
func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestMediaService_UploadStoresFilesAndRow(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, []UploadFile{{
		OriginalName:     "harbour.jpg",
		DeclaredMimeType: "image/jpeg",
		Data:             jpegBytes(t, 1600, 1200),
	}}, "user-1", UploadMetadata{
		Title:       "  Harbour <b>at night</b> ",
		Tags:        "Boats, harbour, boats",
		ContextType: "tour",
		ContextID:   "tour-7",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 0, res.Failed)

	obj := res.Items[0].Media
	require.NotNil(t, obj)
	assert.Equal(t, 800, obj.Width)
	assert.Equal(t, 600, obj.Height)
	assert.Equal(t, "image/jpeg", obj.MimeType)
	assert.Equal(t, "harbour.jpg", obj.OriginalName)
	assert.Equal(t, "user-1", obj.UploadedBy)
	require.NotNil(t, obj.Title)
	assert.Equal(t, "Harbour at night", *obj.Title)
	assert.Equal(t, []string{"boats", "harbour"}, obj.Tags)
	assert.Equal(t, "/uploads/"+obj.Filename, obj.URL)
	assert.Equal(t, "/uploads/thumbnails/"+ThumbnailName(obj.Filename), obj.ThumbnailURL)

	info, err := os.Stat(filepath.Join(f.dir, obj.Filename))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), obj.SizeBytes)
	assert.FileExists(t, filepath.Join(f.dir, "thumbnails", ThumbnailName(obj.Filename)))

	stored, err := f.svc.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, obj.Filename, stored.Filename)
	assert.Equal(t, []string{"boats", "harbour"}, stored.Tags)
}

func TestMediaService_InvalidFileHasNoSideEffects(t *testing.T) {
	f := newServiceFixture(t, 100<<20)

	res, err := f.svc.Upload(context.Background(), []UploadFile{{
		OriginalName:     "notes.jpg",
		DeclaredMimeType: "image/jpeg",
		Data:             []byte("this is not an image at all"),
	}}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	assert.Equal(t, CodeValidation, res.Items[0].Code)

	var vErr *ValidationError
	assert.ErrorAs(t, res.Items[0].Err, &vErr)
	assert.Zero(t, f.repo.sumCalls, "quota must not be consulted for invalid files")
	assert.Empty(t, storedFiles(t, f.dir))

	page, err := f.svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestMediaService_DeclaredTypeMismatch(t *testing.T) {
	f := newServiceFixture(t, 100<<20)

	res, err := f.svc.Upload(context.Background(), []UploadFile{{
		OriginalName:     "photo.png",
		DeclaredMimeType: "image/png",
		Data:             jpegBytes(t, 40, 40),
	}}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	assert.Equal(t, CodeValidation, res.Items[0].Code)
	assert.Empty(t, storedFiles(t, f.dir))
}

func TestMediaService_DeclaredAliasAccepted(t *testing.T) {
	f := newServiceFixture(t, 100<<20)

	res, err := f.svc.Upload(context.Background(), []UploadFile{
		{OriginalName: "a.jpg", DeclaredMimeType: "image/jpg", Data: jpegBytes(t, 40, 40)},
		{OriginalName: "b.jpg", DeclaredMimeType: "application/octet-stream", Data: jpegBytes(t, 40, 40)},
	}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
}

func TestMediaService_QuotaCountsEarlierFilesOfBatch(t *testing.T) {
	// one byte of quota admits exactly one file: the first sees 0 used, the second sees its size
	f := newServiceFixture(t, 1)

	res, err := f.svc.Upload(context.Background(), []UploadFile{
		{OriginalName: "first.jpg", Data: jpegBytes(t, 64, 64)},
		{OriginalName: "second.jpg", Data: jpegBytes(t, 64, 64)},
	}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.NotNil(t, res.Items[0].Media)
	assert.Equal(t, CodeQuotaExceeded, res.Items[1].Code)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Media(), 1)

	var qErr *QuotaExceededError
	require.ErrorAs(t, res.Items[1].Err, &qErr)
	assert.Equal(t, res.Items[0].Media.SizeBytes, qErr.UsedBytes)

	// exactly one optimized file and one thumbnail
	assert.Len(t, storedFiles(t, f.dir), 2)
}

func TestMediaService_QuotaIsPerUser(t *testing.T) {
	f := newServiceFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, []UploadFile{{OriginalName: "a.jpg", Data: jpegBytes(t, 32, 32)}}, "user-1", UploadMetadata{})
	require.NoError(t, err)

	res, err := f.svc.Upload(ctx, []UploadFile{{OriginalName: "b.jpg", Data: jpegBytes(t, 32, 32)}}, "user-2", UploadMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
}

func TestMediaService_InsertFailureRemovesFiles(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	f.repo.createErr = errors.New("connection reset")

	res, err := f.svc.Upload(context.Background(), []UploadFile{
		{OriginalName: "a.jpg", Data: jpegBytes(t, 120, 80)},
	}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	assert.Equal(t, CodeInternal, res.Items[0].Code)
	assert.Equal(t, "internal server error", res.Items[0].Error)
	assert.Empty(t, storedFiles(t, f.dir))
}

func TestMediaService_StorageFailureHidesDetail(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "thumbnails"), []byte("x"), 0o644))

	res, err := f.svc.Upload(context.Background(), []UploadFile{
		{OriginalName: "a.jpg", Data: jpegBytes(t, 60, 40)},
	}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	assert.Equal(t, CodeStorage, res.Items[0].Code)
	assert.Equal(t, "storage failure", res.Items[0].Error)
	assert.NotEqual(t, res.Items[0].Err.Error(), res.Items[0].Error)
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Field: "title", Message: "too long"}, (&ValidationError{Field: "title", Message: "too long"}).Error()},
		{"quota", &QuotaExceededError{UserID: "u", UsedBytes: 5, QuotaBytes: 5}, (&QuotaExceededError{UserID: "u", UsedBytes: 5, QuotaBytes: 5}).Error()},
		{"storage", &StorageError{Op: "write", Err: errors.New("open /srv/uploads/x.jpg: permission denied")}, "storage failure"},
		{"internal", errors.New("pq: connection reset"), "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PublicMessage(tt.err))
		})
	}
}

func TestMediaService_BatchFailuresAreIndependent(t *testing.T) {
	f := newServiceFixture(t, 100<<20)

	res, err := f.svc.Upload(context.Background(), []UploadFile{
		{OriginalName: "good.jpg", Data: jpegBytes(t, 50, 50)},
		{OriginalName: "bad.jpg", Data: []byte{0xFF, 0xD8, 0xFF, 0x00}},
		{OriginalName: "also-good.jpg", Data: jpegBytes(t, 50, 50)},
	}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.NotNil(t, res.Items[0].Media)
	assert.Nil(t, res.Items[1].Media)
	assert.Equal(t, 1, res.Items[1].Index)
	assert.NotNil(t, res.Items[2].Media)
}

func TestMediaService_UploadRejectsBadMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta UploadMetadata
	}{
		{"context id without type", UploadMetadata{ContextID: "tour-1"}},
		{"unknown context type", UploadMetadata{ContextType: "city", ContextID: "x"}},
		{"tour without id", UploadMetadata{ContextType: "tour"}},
		{"standalone with id", UploadMetadata{ContextType: "standalone", ContextID: "x"}},
		{"invalid tag", UploadMetadata{Tags: "ok, bad/tag"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t, 100<<20)
			_, err := f.svc.Upload(context.Background(), []UploadFile{{OriginalName: "a.jpg", Data: jpegBytes(t, 20, 20)}}, "user-1", tt.meta)
			require.Error(t, err)
			assert.Equal(t, CodeValidation, ErrorCode(err))
			assert.Empty(t, storedFiles(t, f.dir))
		})
	}
}

func TestMediaService_UploadRequiresUserAndFiles(t *testing.T) {
	f := newServiceFixture(t, 100<<20)

	_, err := f.svc.Upload(context.Background(), []UploadFile{{Data: jpegBytes(t, 20, 20)}}, "", UploadMetadata{})
	assert.Equal(t, CodeValidation, ErrorCode(err))

	_, err = f.svc.Upload(context.Background(), nil, "user-1", UploadMetadata{})
	assert.Equal(t, CodeValidation, ErrorCode(err))
}

func TestMediaService_UpdateMetadata(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, []UploadFile{{OriginalName: "a.jpg", Data: jpegBytes(t, 300, 200)}}, "user-1", UploadMetadata{Title: "First"})
	require.NoError(t, err)
	orig := res.Items[0].Media

	updated, err := f.svc.UpdateMetadata(ctx, orig.ID, nil, strPtr("<i>Market</i> square"), []string{"Market", "market", "food"})
	require.NoError(t, err)
	assert.Equal(t, "First", *updated.Title)
	assert.Equal(t, "Market square", *updated.AltText)
	assert.Equal(t, []string{"market", "food"}, updated.Tags)
	assert.Equal(t, orig.URL, updated.URL)
	assert.Equal(t, orig.SizeBytes, updated.SizeBytes)
	assert.Equal(t, orig.Width, updated.Width)
	assert.True(t, updated.UpdatedAt.After(orig.UpdatedAt))

	_, err = f.svc.UpdateMetadata(ctx, orig.ID, nil, nil, []string{"bad/tag"})
	assert.Equal(t, CodeValidation, ErrorCode(err))

	_, err = f.svc.UpdateMetadata(ctx, uuid.New(), strPtr("x"), nil, nil)
	assert.True(t, IsNotFound(err))
}

func TestMediaService_Delete(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, []UploadFile{{OriginalName: "a.jpg", Data: jpegBytes(t, 100, 100)}}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	obj := res.Items[0].Media
	require.Len(t, storedFiles(t, f.dir), 2)

	require.NoError(t, f.svc.Delete(ctx, obj.ID))
	assert.Empty(t, storedFiles(t, f.dir))
	_, err = f.svc.Get(ctx, obj.ID)
	assert.True(t, IsNotFound(err))

	err = f.svc.Delete(ctx, obj.ID)
	assert.True(t, IsNotFound(err))

	usage, err := f.svc.Usage(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, usage.UsedBytes)
}

func TestMediaService_DeleteSucceedsWhenFilesStay(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	ctx := context.Background()
	svc := NewMediaService(f.repo, brokenFiles{f.storage}, testCodec(testConfig(t)), NewQuotaService(f.repo, 100<<20), nopLogger())

	res, err := svc.Upload(ctx, []UploadFile{{OriginalName: "a.jpg", Data: jpegBytes(t, 100, 100)}}, "user-1", UploadMetadata{})
	require.NoError(t, err)
	obj := res.Items[0].Media

	require.NoError(t, svc.Delete(ctx, obj.ID))
	_, err = svc.Get(ctx, obj.ID)
	assert.True(t, IsNotFound(err))
	assert.Len(t, storedFiles(t, f.dir), 2)
}

func TestMediaService_ListValidation(t *testing.T) {
	f := newServiceFixture(t, 100<<20)
	ctx := context.Background()

	_, err := f.svc.List(ctx, ListFilter{SortBy: "filename"})
	assert.Equal(t, CodeValidation, ErrorCode(err))
	_, err = f.svc.List(ctx, ListFilter{SortOrder: "sideways"})
	assert.Equal(t, CodeValidation, ErrorCode(err))
	_, err = f.svc.List(ctx, ListFilter{ContextType: "city"})
	assert.Equal(t, CodeValidation, ErrorCode(err))
	_, err = f.svc.List(ctx, ListFilter{Offset: -1})
	assert.Equal(t, CodeValidation, ErrorCode(err))

	page, err := f.svc.List(ctx, ListFilter{SortOrder: "ASC"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestNormalizeMime(t *testing.T) {
	assert.Equal(t, "image/jpeg", normalizeMime("image/jpg"))
	assert.Equal(t, "image/jpeg", normalizeMime(" IMAGE/JPEG; charset=binary"))
	assert.Equal(t, "", normalizeMime("application/octet-stream"))
	assert.Equal(t, "image/png", normalizeMime("image/png"))
}
