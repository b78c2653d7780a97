package api

// API limits and constants.
const (
	// MaxUploadSize is the default upload body limit (20 MB).
	MaxUploadSize = 20 << 20

	// multipartMemory is the part of a multipart form kept in memory;
	// the rest spills to temporary files.
	multipartMemory = 8 << 20
)

// Cache-Control header values.
const (
	// Stored content never changes under a given hash.
	CacheImmutable = "public, max-age=31536000, immutable"
)
