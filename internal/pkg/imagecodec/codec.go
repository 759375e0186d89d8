package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// Registers the WEBP decoder with image.Decode; imaging covers jpeg, png and gif.
	_ "golang.org/x/image/webp"
)

// maxSourcePixels bounds decoded canvas size so a tiny file cannot expand into gigabytes.
const maxSourcePixels = 80_000_000

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrImageTooLarge     = errors.New("image dimensions too large")
)

// allowedMIMEs maps sniffed content types to the format the optimized variant is written in.
var allowedMIMEs = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/webp": imaging.JPEG,
	"image/gif":  imaging.JPEG,
}

// Options controls resize limits and encoder quality.
type Options struct {
	MaxDimension     int
	Quality          int
	ThumbnailSize    int
	ThumbnailQuality int
}

// Result holds both encoded variants and the attributes of the optimized one.
type Result struct {
	Optimized []byte
	Thumbnail []byte
	Width     int
	Height    int
	SizeBytes int64
	MimeType  string
	Ext       string
}

type Codec struct {
	opts Options
}

func New(opts Options) *Codec {
	return &Codec{opts: opts}
}

// Options returns the settings the codec was built with.
func (c *Codec) Options() Options {
	return c.opts
}

// Detect sniffs the content type from magic bytes. ok is false for anything outside the allow-list.
func (c *Codec) Detect(data []byte) (mimeType string, ok bool) {
	mt := mimetype.Detect(data)
	for allowed := range allowedMIMEs {
		if mt.Is(allowed) {
			return allowed, true
		}
	}
	return mt.String(), false
}

// Validate reports whether data is a complete image in one of the allowed formats.
// The declared type of the upload plays no part; the buffer is sniffed and fully decoded.
func (c *Codec) Validate(data []byte) bool {
	_, err := c.decode(data)
	return err == nil
}

// Process produces the optimized variant (bounded by MaxDimension, never upscaled) and a
// square thumbnail cropped to fill ThumbnailSize.
func (c *Codec) Process(data []byte, name string) (*Result, error) {
	src, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("imagecodec - Process %s - decode: %w", name, err)
	}
	mimeType, _ := c.Detect(data)
	format := allowedMIMEs[mimeType]

	optimized := imaging.Fit(src, c.opts.MaxDimension, c.opts.MaxDimension, imaging.Lanczos)
	var optBuf bytes.Buffer
	switch format {
	case imaging.PNG:
		err = imaging.Encode(&optBuf, optimized, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		err = imaging.Encode(&optBuf, flatten(optimized), imaging.JPEG, imaging.JPEGQuality(c.opts.Quality))
	}
	if err != nil {
		return nil, fmt.Errorf("imagecodec - Process %s - encode optimized: %w", name, err)
	}

	thumb := imaging.Fill(src, c.opts.ThumbnailSize, c.opts.ThumbnailSize, imaging.Center, imaging.Lanczos)
	var thumbBuf bytes.Buffer
	if err := imaging.Encode(&thumbBuf, flatten(thumb), imaging.JPEG, imaging.JPEGQuality(c.opts.ThumbnailQuality)); err != nil {
		return nil, fmt.Errorf("imagecodec - Process %s - encode thumbnail: %w", name, err)
	}

	bounds := optimized.Bounds()
	res := &Result{
		Optimized: optBuf.Bytes(),
		Thumbnail: thumbBuf.Bytes(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		SizeBytes: int64(optBuf.Len()),
		MimeType:  "image/jpeg",
		Ext:       ".jpg",
	}
	if format == imaging.PNG {
		res.MimeType = "image/png"
		res.Ext = ".png"
	}
	return res, nil
}

func (c *Codec) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrUnsupportedFormat
	}
	if _, ok := c.Detect(data); !ok {
		return nil, ErrUnsupportedFormat
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, ErrImageTooLarge
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// flatten composites img onto white; JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
