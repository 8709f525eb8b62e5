// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model (conversation turn halves inside a chatroom).
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/domain"
)

// CreateMessage inserts a new message row authored by "user" or "agent".
func CreateMessage(db *gorm.DB, chatroomID, userID, author, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		ChatroomID: chatroomID,
		UserID:     userID,
		Author:     author,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListMessages returns messages for a room ordered deterministically
// (CreatedAt ASC, ID ASC). A limit <= 0 disables the cap.
func ListMessages(db *gorm.DB, chatroomID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("chatroom_id = ?", chatroomID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListRecentMessages returns the newest n messages for a room in
// chronological order. Used to rebuild the model's conversation context.
func ListRecentMessages(db *gorm.DB, chatroomID string, n int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chatroom_id = ?", chatroomID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, chatroomID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE chatroom_id = ?", chatroomID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, chatroomID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("chatroom_id = ?", chatroomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
