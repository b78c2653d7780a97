package media

import (
	"context"
	"log/slog"

	"github.com/buruapp/buru-server/internal/domain"
	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// Extractor turns raw bytes into structural metadata.
type Extractor struct {
	ffprobe *FFprobe
	logger  *slog.Logger
}

// NewExtractor creates an extractor. ffprobe may be nil, in which case only
// ISO-BMFF (mp4/mov) video can be probed.
func NewExtractor(ffprobe *FFprobe, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ffprobe: ffprobe, logger: logger}
}

// Extract probes data according to its sniffed kind. Any parse failure is
// reported as an UNSUPPORTED_MEDIA error. CreatedAt is left zero.
func (e *Extractor) Extract(ctx context.Context, data []byte, sniffed Sniffed) (domain.Metadata, error) {
	switch sniffed.Kind {
	case KindImage:
		return probeImage(data)
	case KindVideo:
		return e.probeVideo(ctx, data, sniffed)
	default:
		return domain.Metadata{}, domainerrors.UnsupportedMediaf("unsupported content type %q", sniffed.MIME)
	}
}

func (e *Extractor) probeVideo(ctx context.Context, data []byte, sniffed Sniffed) (domain.Metadata, error) {
	meta := domain.Metadata{
		Format:    sniffed.Extension,
		ColorType: "Unknown",
		FileSize:  int64(len(data)),
	}

	var duration float64
	if sniffed.MIME == "video/mp4" || sniffed.MIME == "video/quicktime" {
		info, err := probeMP4(data)
		if err != nil {
			e.logger.Debug("mp4 box probe failed", "mime", sniffed.MIME, "error", err)
		} else {
			meta.Width, meta.Height = info.Width, info.Height
			duration = info.Duration
		}
	}

	if (duration <= 0 || meta.Width <= 0 || meta.Height <= 0) && e.ffprobe != nil {
		res, err := e.ffprobe.Probe(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Metadata{}, ctx.Err()
			}
			e.logger.Debug("ffprobe failed", "mime", sniffed.MIME, "error", err)
		} else {
			if meta.Width <= 0 || meta.Height <= 0 {
				meta.Width, meta.Height = res.Width, res.Height
			}
			if duration <= 0 {
				duration = res.Duration
			}
			if res.PixFormat != "" {
				meta.ColorType = res.PixFormat
			}
			if meta.Format == "" {
				meta.Format = res.Format
			}
		}
	}

	if meta.Width <= 0 || meta.Height <= 0 {
		return domain.Metadata{}, domainerrors.UnsupportedMediaf("cannot determine %s frame size", sniffed.MIME)
	}
	if duration <= 0 {
		return domain.Metadata{}, domainerrors.UnsupportedMediaf("cannot determine %s duration", sniffed.MIME)
	}
	meta.Duration = &duration
	return meta, nil
}
