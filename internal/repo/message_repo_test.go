package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hai-app/go-study-backend/internal/domain"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedMessages(t *testing.T, db *gorm.DB, roomID string, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		m := &domain.Message{
			ID:         uuid.NewString(),
			ChatroomID: roomID,
			UserID:     "u1",
			Author:     "user",
			Content:    fmt.Sprintf("msg %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestListRecentMessages(t *testing.T) {
	db := newRepoDB(t)
	room, err := CreateChatroom(context.Background(), db, "u1", "r", "direct", nil, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	seedMessages(t, db, room.ID, 5)

	got, err := ListRecentMessages(db, room.ID, 3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	// Newest three, returned oldest first.
	want := []string{"msg 2", "msg 3", "msg 4"}
	for i := range want {
		if got[i].Content != want[i] {
			t.Fatalf("contents = %v, want %v", []string{got[0].Content, got[1].Content, got[2].Content}, want)
		}
	}
}

func TestListMessagesPage(t *testing.T) {
	db := newRepoDB(t)
	room, err := CreateChatroom(context.Background(), db, "u1", "r", "direct", nil, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	seedMessages(t, db, room.ID, 5)

	total, err := CountMessages(db, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d", total)
	}

	page, err := ListMessagesPage(db, room.ID, 2, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0].Content != "msg 2" || page[1].Content != "msg 3" {
		t.Fatalf("page = %+v", page)
	}
}

func TestGetChatroom_NotAMember(t *testing.T) {
	db := newRepoDB(t)
	room, err := CreateChatroom(context.Background(), db, "u1", "r", "direct", nil, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := GetChatroom(context.Background(), db, room.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := GetChatroom(context.Background(), db, room.ID, "u1"); err != nil {
		t.Fatalf("member get: %v", err)
	}
}
