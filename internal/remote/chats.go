package remote

import (
	"context"
	"fmt"

	"github.com/lookym/datasync/internal/models"
)

// ListChats returns every thread the user participates in, with participant
// snapshots and the full ordered message list joined in.
func (g *Gateway) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT c.id, c.created_at
        FROM chats c
        JOIN chat_participants cp ON cp.chat_id = c.id
        WHERE cp.user_id = $1
        ORDER BY c.created_at DESC, c.id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []models.Chat
	index := make(map[string]int)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		index[chat.ID] = len(chats)
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	rows.Close()

	if len(chats) == 0 {
		return []models.Chat{}, nil
	}

	ids := make([]string, len(chats))
	for i := range chats {
		ids[i] = chats[i].ID
	}

	rows, err = conn.Query(ctx, `
        SELECT cp.chat_id, u.id, u.username, u.avatar_url, u.verified, u.role
        FROM chat_participants cp
        JOIN users u ON u.id = cp.user_id
        WHERE cp.chat_id = ANY($1)
        ORDER BY cp.chat_id, u.username
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query chat participants: %w", err)
	}
	for rows.Next() {
		var (
			chatID string
			p      models.AuthorSnapshot
			role   string
		)
		if err := rows.Scan(&chatID, &p.ID, &p.Username, &p.Avatar, &p.Verified, &role); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat participant: %w", err)
		}
		p.Role = models.Role(role)
		if i, ok := index[chatID]; ok {
			chats[i].Participants = append(chats[i].Participants, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate chat participants: %w", err)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE chat_id = ANY($1)
        ORDER BY created_at, id
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if i, ok := index[msg.ChatID]; ok {
			chats[i].Messages = append(chats[i].Messages, msg)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return chats, nil
}

// InsertChat persists the thread, its participant rows and the first message
// in one transaction, so a failed write never leaves a half-created chat.
func (g *Gateway) InsertChat(ctx context.Context, chat models.Chat) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert chat: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
        INSERT INTO chats (id, created_at) VALUES ($1, $2)
    `, chat.ID, chat.CreatedAt); err != nil {
		return fmt.Errorf("insert chat: %w", mapWriteError(err))
	}

	for _, p := range chat.Participants {
		if _, err := tx.Exec(ctx, `
            INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)
        `, chat.ID, p.ID); err != nil {
			return fmt.Errorf("insert chat participant: %w", mapWriteError(err))
		}
	}

	for _, msg := range chat.Messages {
		if _, err := tx.Exec(ctx, `
            INSERT INTO messages (id, chat_id, sender_id, text, read, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, msg.ID, chat.ID, msg.SenderID, msg.Text, msg.Read, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert chat message: %w", mapWriteError(err))
		}
	}

	return tx.Commit(ctx)
}

// InsertMessage appends one message and returns the stored row.
func (g *Gateway) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO messages (id, chat_id, sender_id, text, read, created_at)
        VALUES ($1, $2, $3, $4, FALSE, $5)
        RETURNING `+messageColumns,
		msg.ID, msg.ChatID, msg.SenderID, msg.Text, msg.CreatedAt)

	stored, err := scanMessage(row)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", mapWriteError(err))
	}
	return stored, nil
}

// MarkMessagesRead flips read on the reader's inbound messages in the thread,
// all of them or the given subset.
func (g *Gateway) MarkMessagesRead(ctx context.Context, chatID, readerID string, ids ...string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if len(ids) == 0 {
		_, err = conn.Exec(ctx, `
            UPDATE messages SET read = TRUE
            WHERE chat_id = $1 AND sender_id <> $2 AND read = FALSE
        `, chatID, readerID)
	} else {
		_, err = conn.Exec(ctx, `
            UPDATE messages SET read = TRUE
            WHERE chat_id = $1 AND sender_id <> $2 AND read = FALSE AND id = ANY($3)
        `, chatID, readerID, ids)
	}
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}
