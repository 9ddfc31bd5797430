package app

import (
	"context"
	"log/slog"

	"github.com/lookym/datasync/internal/config"
	"github.com/lookym/datasync/internal/db"
	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/media"
	"github.com/lookym/datasync/internal/realtime"
	"github.com/lookym/datasync/internal/remote"
	"github.com/lookym/datasync/internal/storage"
	"github.com/lookym/datasync/internal/store"
)

// Stores bundles the synchronization layer handed to the embedding app.
type Stores struct {
	Session       *store.Session
	Content       *store.Content
	Relationship  *store.Relationship
	Conversation  *store.Conversation
	Notifications *store.Notifications
	Realtime      *realtime.Client
}

// buildDependencies wires the remote gateway, media hosting and local stores.
func buildDependencies(ctx context.Context, pool db.Pool, kv kvstore.Store, cfg config.Config, logger *slog.Logger) (Stores, error) {
	gateway := remote.New(pool)

	objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return Stores{}, err
	}
	mediaGateway := media.NewGateway(objects, cfg.MediaBaseURL, cfg.MediaFolder, logger)

	session := store.NewSession(gateway, gateway, mediaGateway, kv, logger)

	return Stores{
		Session:       session,
		Content:       store.NewContent(gateway, mediaGateway, session, kv, logger),
		Relationship:  store.NewRelationship(gateway, gateway, gateway, session, logger),
		Conversation:  store.NewConversation(gateway, gateway, session, kv, logger),
		Notifications: store.NewNotifications(gateway, session, kv, logger),
		Realtime:      realtime.NewClient(cfg.RealtimeURL, logger),
	}, nil
}
