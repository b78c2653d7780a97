// Package media sniffs uploaded bytes and extracts structural metadata
// without decoding pixels.
package media

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the broad class of sniffed content.
type Kind int

const (
	// KindUnknown is content that is neither a still image nor a video.
	KindUnknown Kind = iota
	// KindImage is a still (or animated, frame-based) image.
	KindImage
	// KindVideo is time-based media.
	KindVideo
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Sniffed is the result of content detection.
type Sniffed struct {
	MIME      string
	Extension string // without the leading dot
	Kind      Kind
}

// Sniff detects the content type of data from its leading bytes.
func Sniff(data []byte) Sniffed {
	m := mimetype.Detect(data)
	mime := m.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	s := Sniffed{
		MIME:      mime,
		Extension: strings.TrimPrefix(m.Extension(), "."),
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		s.Kind = KindImage
	case strings.HasPrefix(mime, "video/"):
		s.Kind = KindVideo
	}
	return s
}
