// Package domain holds the archive's value types shared across layers.
package domain

import (
	"time"

	"github.com/buruapp/buru-server/internal/content"
)

// Metadata describes the structure of archived content.
// Duration is set only for time-based media.
type Metadata struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    string    `json:"format"`     // container/codec label, e.g. "png", "mp4"
	ColorType string    `json:"color_type"` // pixel layout label, e.g. "Rgb8"
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
	Duration  *float64  `json:"duration,omitempty"` // seconds
}

// IsVideo reports whether the metadata belongs to time-based media.
func (m Metadata) IsVideo() bool {
	return m.Duration != nil
}

// Image is one distinct piece of archived content.
type Image struct {
	Hash   content.Hash `json:"hash"`
	Source string       `json:"source,omitempty"`
}

// Media is the full read model of an archived item.
type Media struct {
	Hash     content.Hash `json:"hash"`
	Source   string       `json:"source,omitempty"`
	Tags     []string     `json:"tags"`
	Metadata Metadata     `json:"metadata"`
}

// TagCount is a tag name with its cached image count.
// Counts come from the tag_counts cache and may be stale until the next refresh.
type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
