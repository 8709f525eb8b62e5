// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chatrooms and
// their memberships. All functions are context-aware and accept a *gorm.DB
// handle so they compose with transactions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/domain"
)

// CreateChatroom inserts a chatroom and its initial memberships. The creator
// becomes admin; other member ids join as regular members. Runs in one
// transaction so a room is never persisted without its creator membership.
func CreateChatroom(ctx context.Context, db *gorm.DB, creatorID, name, roomType string, courseID *string, memberIDs []string) (*domain.Chatroom, error) {
	now := time.Now().UTC()
	room := &domain.Chatroom{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      roomType,
		CourseID:  courseID,
		CreatedAt: now,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		members := make([]domain.ChatroomMember, 0, len(memberIDs)+1)
		seen := map[string]bool{creatorID: true}
		members = append(members, domain.ChatroomMember{
			ID:         uuid.NewString(),
			ChatroomID: room.ID,
			UserID:     creatorID,
			IsAdmin:    true,
			CreatedAt:  now,
		})
		for _, uid := range memberIDs {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			members = append(members, domain.ChatroomMember{
				ID:         uuid.NewString(),
				ChatroomID: room.ID,
				UserID:     uid,
				CreatedAt:  now,
			})
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		room.Members = members
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListChatrooms returns the rooms userID is a member of, newest first,
// members preloaded.
func ListChatrooms(ctx context.Context, db *gorm.DB, userID string) ([]domain.Chatroom, error) {
	var out []domain.Chatroom
	err := db.WithContext(ctx).
		Preload("Members").
		Where("id IN (?)", db.Model(&domain.ChatroomMember{}).
			Select("chatroom_id").
			Where("user_id = ?", userID)).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GetChatroom fetches a single room by id, requiring userID to be a member.
// Returns ErrNotFound when the room is missing or the user is not in it.
func GetChatroom(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Chatroom, error) {
	var room domain.Chatroom
	err := db.WithContext(ctx).
		Preload("Members").
		Where("id = ? AND id IN (?)", id, db.Model(&domain.ChatroomMember{}).
			Select("chatroom_id").
			Where("user_id = ?", userID)).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetMembership returns the membership row for (roomID, userID), or ErrNotFound.
func GetMembership(ctx context.Context, db *gorm.DB, roomID, userID string) (*domain.ChatroomMember, error) {
	var m domain.ChatroomMember
	err := db.WithContext(ctx).
		Where("chatroom_id = ? AND user_id = ?", roomID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RenameChatroom updates a room's name. Returns ErrNotFound when no row matches.
func RenameChatroom(ctx context.Context, db *gorm.DB, id, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Chatroom{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteChatroom soft-deletes a room and its memberships.
func DeleteChatroom(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chatroom_id = ?", id).Delete(&domain.ChatroomMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Chatroom{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
