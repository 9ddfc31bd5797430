package media

import (
	"fmt"
	"strings"
)

// Transform describes a derived variant of a hosted asset. URL derivation is
// purely deterministic string construction; the CDN applies the
// transformation on first request.
type Transform struct {
	Width       int
	Height      int
	Quality     string
	Format      string
	SeekSeconds float64
}

// segment renders the comma-joined transformation directives, or "" when the
// transform is empty.
func (t Transform) segment() string {
	var parts []string
	if t.Width > 0 {
		parts = append(parts, fmt.Sprintf("w_%d", t.Width))
	}
	if t.Height > 0 {
		parts = append(parts, fmt.Sprintf("h_%d", t.Height))
	}
	if t.SeekSeconds > 0 {
		parts = append(parts, fmt.Sprintf("so_%.1f", t.SeekSeconds))
	}
	if t.Quality != "" {
		parts = append(parts, "q_"+t.Quality)
	}
	if t.Format != "" {
		parts = append(parts, "f_"+t.Format)
	}
	return strings.Join(parts, ",")
}

// VideoURL derives the delivery URL of a hosted video variant.
func VideoURL(baseURL, publicID string, t Transform) string {
	return deliveryURL(baseURL, "video", publicID, t, t.Format)
}

// ThumbnailURL derives a still-frame URL from a hosted video. SeekSeconds
// selects the frame; Format defaults to jpg.
func ThumbnailURL(baseURL, publicID string, t Transform) string {
	if t.Format == "" {
		t.Format = "jpg"
	}
	return deliveryURL(baseURL, "video", publicID, t, t.Format)
}

func deliveryURL(baseURL, resourceType, publicID string, t Transform, ext string) string {
	base := strings.TrimSuffix(baseURL, "/")
	segment := t.segment()

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/")
	b.WriteString(resourceType)
	b.WriteString("/upload/")
	if segment != "" {
		b.WriteString(segment)
		b.WriteString("/")
	}
	b.WriteString(strings.TrimLeft(publicID, "/"))
	if ext != "" {
		b.WriteString(".")
		b.WriteString(ext)
	}
	return b.String()
}
