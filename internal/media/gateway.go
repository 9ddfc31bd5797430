package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/lookym/datasync/internal/storage"
)

// ObjectStorage is the slice of the binary object store the media gateway
// uses.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, r io.Reader, opts storage.UploadOptions) (string, error)
	PublicURL(key string) string
}

// Gateway hosts device-local binaries and derives CDN variants. It plays the
// role of the external transcoding service: upload once, then build variant
// URLs deterministically.
type Gateway struct {
	storage ObjectStorage
	baseURL string
	folder  string
	logger  *slog.Logger
	open    func(string) (io.ReadCloser, error)
	newID   func() string
}

// NewGateway constructs the media gateway. baseURL is the CDN root used for
// derived variant URLs; folder namespaces uploaded videos.
func NewGateway(store ObjectStorage, baseURL, folder string, logger *slog.Logger) *Gateway {
	if store == nil {
		panic("media: gateway requires object storage")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if folder == "" {
		folder = "videos"
	}
	return &Gateway{
		storage: store,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		folder:  folder,
		logger:  logger,
		open:    openLocal,
		newID:   uuid.NewString,
	}
}

// UploadVideo hosts the binary at localURI and returns the permanent video
// URL, a derived thumbnail URL and the detected mime type.
func (g *Gateway) UploadVideo(ctx context.Context, localURI string) (string, string, string, error) {
	f, err := g.open(localURI)
	if err != nil {
		return "", "", "", fmt.Errorf("open local video: %w", err)
	}
	defer f.Close()

	ext := extensionOf(localURI, ".mp4")
	mimeType := mimeTypeFor(ext)
	publicID := path.Join(g.folder, g.newID())

	key, err := g.storage.Upload(ctx, publicID+ext, f, storage.UploadOptions{
		ContentType:  mimeType,
		CacheControl: "public, max-age=31536000",
		Upsert:       false,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("upload video: %w", err)
	}
	g.logger.Info("video uploaded", "publicId", publicID, "key", key)

	videoURL := VideoURL(g.baseURL, publicID, Transform{Quality: "auto", Format: strings.TrimPrefix(ext, ".")})
	thumbURL := ThumbnailURL(g.baseURL, publicID, Transform{Width: 480, Height: 854, SeekSeconds: 1, Quality: "auto"})
	return videoURL, thumbURL, mimeType, nil
}

// UploadAvatar hosts a device-local profile picture and returns its public
// URL. Avatars are keyed by user so a re-upload replaces the old image.
func (g *Gateway) UploadAvatar(ctx context.Context, userID, localURI string) (string, error) {
	f, err := g.open(localURI)
	if err != nil {
		return "", fmt.Errorf("open local avatar: %w", err)
	}
	defer f.Close()

	ext := extensionOf(localURI, ".jpg")
	key, err := g.storage.Upload(ctx, path.Join("avatars", userID+ext), f, storage.UploadOptions{
		ContentType:  mimeTypeFor(ext),
		CacheControl: "public, max-age=86400",
		Upsert:       true,
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return g.storage.PublicURL(key), nil
}

func openLocal(uri string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

func extensionOf(uri, fallback string) string {
	ext := strings.ToLower(path.Ext(uri))
	if ext == "" {
		return fallback
	}
	return ext
}

func mimeTypeFor(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
