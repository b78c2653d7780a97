package media

import (
	"bytes"
	"image"
	"image/color"

	// Registered decoders: DecodeConfig only reads headers.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// probeImage reads just the container header of a still image.
func probeImage(data []byte) (domain.Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Metadata{}, domainerrors.UnsupportedMedia("cannot read image header").WithCause(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.Metadata{}, domainerrors.UnsupportedMediaf("image reports invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	return domain.Metadata{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		ColorType: colorTypeLabel(cfg.ColorModel),
		FileSize:  int64(len(data)),
	}, nil
}

// colorTypeLabel names the pixel layout a decoder would produce.
func colorTypeLabel(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "Rgba8"
	}
	switch m {
	case color.GrayModel:
		return "L8"
	case color.Gray16Model:
		return "L16"
	case color.AlphaModel:
		return "La8"
	case color.Alpha16Model:
		return "La16"
	case color.YCbCrModel, color.CMYKModel:
		return "Rgb8"
	case color.RGBAModel, color.NRGBAModel, color.NYCbCrAModel:
		return "Rgba8"
	case color.RGBA64Model, color.NRGBA64Model:
		return "Rgba16"
	default:
		return "Unknown"
	}
}
