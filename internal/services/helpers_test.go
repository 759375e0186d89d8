package services

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"testing"

	"github.com/citytours/backend/internal/config"
	"github.com/citytours/backend/internal/models"
	"github.com/citytours/backend/internal/pkg/imagecodec"
	"github.com/disintegration/imaging"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		NowFunc: models.NowFunc,
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		UploadDir:             t.TempDir(),
		PublicBaseURL:         "",
		MediaMaxDimension:     800,
		MediaQuality:          85,
		MediaThumbnailSize:    150,
		MediaThumbnailQuality: 70,
		MediaUserQuotaBytes:   100 * 1024 * 1024,
		MediaMaxFiles:         10,
		MediaMaxFileBytes:     10 * 1024 * 1024,
	}
}

func testCodec(cfg *config.Config) *imagecodec.Codec {
	return imagecodec.New(imagecodec.Options{
		MaxDimension:     cfg.MediaMaxDimension,
		Quality:          cfg.MediaQuality,
		ThumbnailSize:    cfg.MediaThumbnailSize,
		ThumbnailQuality: cfg.MediaThumbnailQuality,
	})
}

func nopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

func strPtr(s string) *string { return &s }
