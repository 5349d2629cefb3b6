// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatgate/internal/logging"
	"github.com/jeranaias/chatgate/internal/model"
	"github.com/jeranaias/chatgate/internal/util"
)

// DefaultMaxRooms bounds how many rooms are kept before the least recently
// updated are dropped.
const DefaultMaxRooms = 100

// =============================================================================
// STORED TYPES
// =============================================================================

// StoredConversation is one room's recorded transcript.
type StoredConversation struct {
	RoomID    string          `json:"room_id"`
	Summary   string          `json:"summary"`
	ModelID   int64           `json:"model_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []StoredMessage `json:"messages"`
}

// StoredMessage is one recorded message.
type StoredMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	FileID    string    `json:"file_id,omitempty"`
	ServerID  string    `json:"server_id,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	ModelID   int64     `json:"model_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMeta contains metadata for listing rooms.
type ConversationMeta struct {
	RoomID       string    `json:"room_id"`
	Summary      string    `json:"summary"`
	ModelID      int64     `json:"model_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a room has no transcript.
var ErrConversationNotFound = errors.New("conversation not found")

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

// TranscriptStore persists finished exchanges in SQLite.
type TranscriptStore struct {
	db  *sql.DB
	log *zap.SugaredLogger

	// MaxRooms limits stored rooms (0 = unlimited).
	MaxRooms int

	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*TranscriptStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &TranscriptStore{
		db:       db,
		log:      logging.Named("storage"),
		MaxRooms: DefaultMaxRooms,
	}, nil
}

// Close closes the database.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// RecordExchange stores a finished user/assistant pair for roomID.
func (s *TranscriptStore) RecordExchange(ctx context.Context, roomID string, modelID int64, user, reply model.Message) error {
	if roomID == "" {
		return errors.New("record exchange: room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (room_id, summary, model_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET model_id = excluded.model_id, updated_at = excluded.updated_at`,
		roomID, summarize(user), modelID, now, now)
	if err != nil {
		return fmt.Errorf("record exchange: upsert room: %w", err)
	}

	for _, msg := range []model.Message{user, reply} {
		if err := insertMessage(ctx, tx, roomID, modelID, msg); err != nil {
			return fmt.Errorf("record exchange: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record exchange: commit: %w", err)
	}

	if s.MaxRooms > 0 {
		s.enforceLimit(ctx)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, roomID string, modelID int64, msg model.Message) error {
	var fileID, serverID string
	var tokens int
	if msg.Attachment != nil {
		fileID = msg.Attachment.FileID
	}
	if md := msg.Metadata; md != nil {
		switch msg.Role {
		case model.RoleUser:
			serverID, tokens = md.UserMessageID, md.InputTokens
		default:
			serverID, tokens = md.AIResponseID, md.OutputTokens
		}
	}
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, message_id, role, content, file_id, server_id, tokens, model_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		roomID, msg.ID, string(msg.Role), msg.Content, fileID, serverID, tokens, modelID, created.UnixMilli())
	return err
}

// summarize creates a summary from the user message.
func summarize(user model.Message) string {
	content := util.SingleLine(user.Content)
	if content == "" {
		return "New conversation"
	}
	return util.TruncateRunes(content, 50)
}

// enforceLimit removes the least recently updated rooms over MaxRooms.
func (s *TranscriptStore) enforceLimit(ctx context.Context) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rooms WHERE room_id IN (
			SELECT room_id FROM rooms ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, s.MaxRooms)
	if err != nil {
		s.log.Warnw("failed to prune transcripts", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debugw("pruned transcripts", "rooms", n)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load returns the transcript of roomID.
func (s *TranscriptStore) Load(ctx context.Context, roomID string) (*StoredConversation, error) {
	conv := &StoredConversation{RoomID: roomID}
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, model_id, created_at, updated_at FROM rooms WHERE room_id = ?`, roomID).
		Scan(&conv.Summary, &conv.ModelID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = time.UnixMilli(created)
	conv.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, COALESCE(file_id, ''), COALESCE(server_id, ''), tokens, model_id, created_at
		FROM messages WHERE room_id = ? ORDER BY seq`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m StoredMessage
		var ts int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.FileID, &m.ServerID, &m.Tokens, &m.ModelID, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = time.UnixMilli(ts)
		conv.Messages = append(conv.Messages, m)
	}
	return conv, rows.Err()
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all recorded rooms, most recently updated first.
func (s *TranscriptStore) List(ctx context.Context) ([]ConversationMeta, error) {
	return s.query(ctx, "", "")
}

// Search finds rooms whose summary matches query (case-insensitive).
func (s *TranscriptStore) Search(ctx context.Context, query string) ([]ConversationMeta, error) {
	return s.query(ctx, "WHERE r.summary LIKE ? ESCAPE '\\'", likePattern(query))
}

// SearchMessages finds rooms where any message contains query.
func (s *TranscriptStore) SearchMessages(ctx context.Context, query string) ([]ConversationMeta, error) {
	if query == "" {
		return s.List(ctx)
	}
	return s.query(ctx,
		"WHERE EXISTS (SELECT 1 FROM messages m WHERE m.room_id = r.room_id AND m.content LIKE ? ESCAPE '\\')",
		likePattern(query))
}

func (s *TranscriptStore) query(ctx context.Context, where, arg string) ([]ConversationMeta, error) {
	q := `
		SELECT r.room_id, r.summary, r.model_id, r.created_at, r.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.room_id = r.room_id),
			COALESCE((SELECT m.content FROM messages m WHERE m.room_id = r.room_id AND m.role = 'user' ORDER BY m.seq LIMIT 1), '')
		FROM rooms r ` + where + `
		ORDER BY r.updated_at DESC`

	var args []interface{}
	if where != "" {
		args = append(args, arg)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := []ConversationMeta{}
	for rows.Next() {
		var m ConversationMeta
		var created, updated int64
		if err := rows.Scan(&m.RoomID, &m.Summary, &m.ModelID, &created, &updated, &m.MessageCount, &m.Preview); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		m.Preview = util.TruncateRunes(util.SingleLine(m.Preview), 80)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// likePattern escapes LIKE wildcards in query.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a room's transcript.
func (s *TranscriptStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, roomID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes every transcript.
func (s *TranscriptStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms`)
	return err
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList formats rooms as a fixed-width table.
func FormatSessionList(sessions []ConversationMeta) string {
	if len(sessions) == 0 {
		return "No transcripts found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ROOM", 12) + " " + util.PadRight("UPDATED", 16) + " " + util.PadRight("MSGS", 5) + " PREVIEW\n")
	for _, s := range sessions {
		sb.WriteString(util.PadRight(s.RoomID, 12) + " " +
			util.PadRight(s.UpdatedAt.Format("2006-01-02 15:04"), 16) + " " +
			util.PadRight(fmt.Sprint(s.MessageCount), 5) + " " +
			util.TruncateWidth(s.Preview, 40) + "\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the transcript as Markdown.
func (c *StoredConversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + c.Summary + "\n\n")
	sb.WriteString("Room: " + c.RoomID + "  \n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		role, _ := model.ParseRole(msg.Role)
		sb.WriteString("**" + role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// ExportJSON renders the transcript as indented JSON.
func (c *StoredConversation) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// WriteExport writes the transcript to path, choosing the format from the
// extension (.json, otherwise Markdown).
func (c *StoredConversation) WriteExport(path string) error {
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := c.ExportJSON()
		if err != nil {
			return err
		}
		data = b
	} else {
		data = []byte(c.ExportMarkdown())
	}
	return util.AtomicWriteFile(path, data, 0o644)
}

// GetPreview returns the first user message, truncated.
func (c *StoredConversation) GetPreview() string {
	for _, msg := range c.Messages {
		if msg.Role == string(model.RoleUser) && msg.Content != "" {
			return util.TruncateRunes(msg.Content, 80)
		}
	}
	return ""
}
