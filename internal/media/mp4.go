package media

import (
	"encoding/binary"
	"fmt"
)

// mp4Info is what the box walker recovers from an ISO-BMFF file.
type mp4Info struct {
	Duration float64 // seconds, 0 if unknown
	Width    int
	Height   int
}

// box is one ISO-BMFF box: payload excludes the header.
type box struct {
	Type    string
	Payload []byte
}

// readBoxes splits buf into consecutive boxes.
func readBoxes(buf []byte) ([]box, error) {
	var boxes []box
	for len(buf) > 0 {
		if len(buf) < 8 {
			return nil, fmt.Errorf("truncated box header (%d bytes)", len(buf))
		}
		size := uint64(binary.BigEndian.Uint32(buf[0:4]))
		typ := string(buf[4:8])
		header := uint64(8)

		switch size {
		case 0:
			size = uint64(len(buf))
		case 1:
			if len(buf) < 16 {
				return nil, fmt.Errorf("truncated large box %q", typ)
			}
			size = binary.BigEndian.Uint64(buf[8:16])
			header = 16
		}
		if size < header || size > uint64(len(buf)) {
			return nil, fmt.Errorf("box %q has invalid size %d", typ, size)
		}

		boxes = append(boxes, box{Type: typ, Payload: buf[header:size]})
		buf = buf[size:]
	}
	return boxes, nil
}

func findBox(boxes []box, typ string) (box, bool) {
	for _, b := range boxes {
		if b.Type == typ {
			return b, true
		}
	}
	return box{}, false
}

// probeMP4 reads the movie header and the first video track header.
// It never decodes samples.
func probeMP4(data []byte) (mp4Info, error) {
	top, err := readBoxes(data)
	if err != nil {
		return mp4Info{}, err
	}
	if _, ok := findBox(top, "ftyp"); !ok {
		return mp4Info{}, fmt.Errorf("missing ftyp box")
	}
	moov, ok := findBox(top, "moov")
	if !ok {
		return mp4Info{}, fmt.Errorf("missing moov box")
	}

	children, err := readBoxes(moov.Payload)
	if err != nil {
		return mp4Info{}, fmt.Errorf("moov: %w", err)
	}

	var info mp4Info
	if mvhd, ok := findBox(children, "mvhd"); ok {
		info.Duration, err = parseMvhd(mvhd.Payload)
		if err != nil {
			return mp4Info{}, err
		}
	}

	for _, trak := range children {
		if trak.Type != "trak" {
			continue
		}
		w, h, isVideo, err := parseTrak(trak.Payload)
		if err != nil {
			return mp4Info{}, err
		}
		if isVideo {
			info.Width, info.Height = w, h
			break
		}
	}
	return info, nil
}

// parseMvhd returns duration / timescale in seconds.
func parseMvhd(p []byte) (float64, error) {
	if len(p) < 4 {
		return 0, fmt.Errorf("truncated mvhd")
	}
	var timescale uint32
	var duration uint64
	switch p[0] {
	case 0:
		if len(p) < 20 {
			return 0, fmt.Errorf("truncated mvhd v0")
		}
		timescale = binary.BigEndian.Uint32(p[12:16])
		duration = uint64(binary.BigEndian.Uint32(p[16:20]))
	case 1:
		if len(p) < 32 {
			return 0, fmt.Errorf("truncated mvhd v1")
		}
		timescale = binary.BigEndian.Uint32(p[20:24])
		duration = binary.BigEndian.Uint64(p[24:32])
	default:
		return 0, fmt.Errorf("unknown mvhd version %d", p[0])
	}
	if timescale == 0 {
		return 0, nil
	}
	return float64(duration) / float64(timescale), nil
}

// parseTrak reports the tkhd presentation size and whether the handler is video.
func parseTrak(p []byte) (width, height int, isVideo bool, err error) {
	boxes, err := readBoxes(p)
	if err != nil {
		return 0, 0, false, fmt.Errorf("trak: %w", err)
	}

	if tkhd, ok := findBox(boxes, "tkhd"); ok {
		if len(tkhd.Payload) < 8 {
			return 0, 0, false, fmt.Errorf("truncated tkhd")
		}
		// Width and height close the box as 16.16 fixed point.
		tail := tkhd.Payload[len(tkhd.Payload)-8:]
		width = int(binary.BigEndian.Uint32(tail[0:4]) >> 16)
		height = int(binary.BigEndian.Uint32(tail[4:8]) >> 16)
	}

	if mdia, ok := findBox(boxes, "mdia"); ok {
		inner, err := readBoxes(mdia.Payload)
		if err != nil {
			return 0, 0, false, fmt.Errorf("mdia: %w", err)
		}
		if hdlr, ok := findBox(inner, "hdlr"); ok && len(hdlr.Payload) >= 12 {
			isVideo = string(hdlr.Payload[8:12]) == "vide"
		}
	}
	return width, height, isVideo, nil
}
