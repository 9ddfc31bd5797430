package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lookym/datasync/internal/models"
)

// ListVideos returns one reverse-chronological catalog page with the author
// snapshot, comments and tagged products joined in.
func (g *Gateway) ListVideos(ctx context.Context, offset, limit int) ([]models.Video, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        JOIN users u ON u.id = v.author_id
        ORDER BY v.created_at DESC, v.id
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	videos, err := collectVideos(rows)
	if err != nil {
		return nil, err
	}
	if err := g.attachVideoChildren(ctx, conn, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// ListVideosByUser returns one user's uploads, newest first.
func (g *Gateway) ListVideosByUser(ctx context.Context, userID string) ([]models.Video, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        JOIN users u ON u.id = v.author_id
        WHERE v.author_id = $1
        ORDER BY v.created_at DESC, v.id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query videos by user: %w", err)
	}
	videos, err := collectVideos(rows)
	if err != nil {
		return nil, err
	}
	if err := g.attachVideoChildren(ctx, conn, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// GetVideo fetches one video with children.
func (g *Gateway) GetVideo(ctx context.Context, id string) (models.Video, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+videoColumns+`
        FROM videos v
        JOIN users u ON u.id = v.author_id
        WHERE v.id = $1
    `, id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	videos := []models.Video{video}
	if err := g.attachVideoChildren(ctx, conn, videos); err != nil {
		return models.Video{}, err
	}
	return videos[0], nil
}

// InsertVideo persists a new metadata row plus its tagged products.
func (g *Gateway) InsertVideo(ctx context.Context, video models.Video) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert video: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO videos (id, author_id, video_url, thumbnail_url, caption, hashtags, likes, mime_type, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
    `, video.ID, video.Author.ID, video.VideoURL, video.ThumbnailURL, video.Caption, video.Hashtags, video.MimeType, video.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert video: %w", mapWriteError(err))
	}

	for _, product := range video.Products {
		if product.ID == "" {
			product.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO video_products (id, video_id, name, price, url)
            VALUES ($1, $2, $3, $4, $5)
        `, product.ID, video.ID, product.Name, product.Price, product.URL)
		if err != nil {
			return fmt.Errorf("insert video product: %w", mapWriteError(err))
		}
	}

	return tx.Commit(ctx)
}

// IncrementVideoLikes atomically bumps the like counter and returns the new
// value.
func (g *Gateway) IncrementVideoLikes(ctx context.Context, videoID string) (int, error) {
	return g.adjustLikes(ctx, videoID, `UPDATE videos SET likes = likes + 1 WHERE id = $1 RETURNING likes`)
}

// DecrementVideoLikes atomically lowers the counter, clamping at zero.
func (g *Gateway) DecrementVideoLikes(ctx context.Context, videoID string) (int, error) {
	return g.adjustLikes(ctx, videoID, `UPDATE videos SET likes = GREATEST(likes - 1, 0) WHERE id = $1 RETURNING likes`)
}

func (g *Gateway) adjustLikes(ctx context.Context, videoID, query string) (int, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var likes int
	if err := conn.QueryRow(ctx, query, videoID).Scan(&likes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("adjust video likes: %w", err)
	}
	return likes, nil
}

// InsertVideoLike records the like edge for the user.
func (g *Gateway) InsertVideoLike(ctx context.Context, videoID, userID string) error {
	return g.insertEdge(ctx, `INSERT INTO video_likes (video_id, user_id, created_at) VALUES ($1, $2, $3)`, videoID, userID)
}

// DeleteVideoLike removes the like edge.
func (g *Gateway) DeleteVideoLike(ctx context.Context, videoID, userID string) error {
	return g.deleteEdge(ctx, `DELETE FROM video_likes WHERE video_id = $1 AND user_id = $2`, videoID, userID)
}

// InsertSavedVideo records the saved edge for the user.
func (g *Gateway) InsertSavedVideo(ctx context.Context, videoID, userID string) error {
	return g.insertEdge(ctx, `INSERT INTO saved_videos (video_id, user_id, created_at) VALUES ($1, $2, $3)`, videoID, userID)
}

// DeleteSavedVideo removes the saved edge.
func (g *Gateway) DeleteSavedVideo(ctx context.Context, videoID, userID string) error {
	return g.deleteEdge(ctx, `DELETE FROM saved_videos WHERE video_id = $1 AND user_id = $2`, videoID, userID)
}

// ListLikedVideoIDs returns the ids of videos the user has liked.
func (g *Gateway) ListLikedVideoIDs(ctx context.Context, userID string) ([]string, error) {
	return g.listEdgeIDs(ctx, `SELECT video_id FROM video_likes WHERE user_id = $1`, userID)
}

// ListSavedVideoIDs returns the ids of videos the user has saved.
func (g *Gateway) ListSavedVideoIDs(ctx context.Context, userID string) ([]string, error) {
	return g.listEdgeIDs(ctx, `SELECT video_id FROM saved_videos WHERE user_id = $1`, userID)
}

// InsertComment stores the comment and re-reads it joined with the author
// snapshot, so the caller appends exactly what other clients will fetch.
func (g *Gateway) InsertComment(ctx context.Context, videoID, authorID, text string) (models.Comment, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	id := uuid.NewString()
	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, video_id, author_id, text, likes, created_at)
        VALUES ($1, $2, $3, $4, 0, $5)
    `, id, videoID, authorID, text, nowUTC())
	if err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", mapWriteError(err))
	}

	row := conn.QueryRow(ctx, `
        SELECT `+commentColumns+`
        FROM comments c
        JOIN users u ON u.id = c.author_id
        WHERE c.id = $1
    `, id)
	comment, err := scanComment(row)
	if err != nil {
		return models.Comment{}, fmt.Errorf("read back comment: %w", err)
	}
	return comment, nil
}

func (g *Gateway) insertEdge(ctx context.Context, query, videoID, userID string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, query, videoID, userID, nowUTC()); err != nil {
		return fmt.Errorf("insert engagement edge: %w", mapWriteError(err))
	}
	return nil
}

func (g *Gateway) deleteEdge(ctx context.Context, query, videoID, userID string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, videoID, userID)
	if err != nil {
		return fmt.Errorf("delete engagement edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gateway) listEdgeIDs(ctx context.Context, query, userID string) ([]string, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query engagement edges: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan edge id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge ids: %w", err)
	}
	return ids, nil
}

func collectVideos(rows pgx.Rows) ([]models.Video, error) {
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// attachVideoChildren loads comments and products for the given videos in two
// batch queries and distributes them in memory.
func (g *Gateway) attachVideoChildren(ctx context.Context, conn *pgxpool.Conn, videos []models.Video) error {
	if len(videos) == 0 {
		return nil
	}

	ids := make([]string, len(videos))
	index := make(map[string]int, len(videos))
	for i := range videos {
		ids[i] = videos[i].ID
		index[videos[i].ID] = i
	}

	rows, err := conn.Query(ctx, `
        SELECT `+commentColumns+`
        FROM comments c
        JOIN users u ON u.id = c.author_id
        WHERE c.video_id = ANY($1)
        ORDER BY c.created_at, c.id
    `, ids)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan comment: %w", err)
		}
		if i, ok := index[comment.VideoID]; ok {
			videos[i].Comments = append(videos[i].Comments, comment)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate comments: %w", err)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
        SELECT id, video_id, name, price, url
        FROM video_products
        WHERE video_id = ANY($1)
        ORDER BY name
    `, ids)
	if err != nil {
		return fmt.Errorf("query video products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			product models.Product
			videoID string
		)
		if err := rows.Scan(&product.ID, &videoID, &product.Name, &product.Price, &product.URL); err != nil {
			return fmt.Errorf("scan video product: %w", err)
		}
		if i, ok := index[videoID]; ok {
			videos[i].Products = append(videos[i].Products, product)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate video products: %w", err)
	}
	return nil
}
