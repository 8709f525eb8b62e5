package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/repo"
)

const (
	// defaultRoomName marks a room eligible for auto-titling from its first
	// message.
	defaultRoomName = "New chat"

	roomTypeDirect = "direct"
	roomTypeGroup  = "group"
)

// ChatroomService manages room lifecycle and membership rules: every member
// can read and post, only the admin (the creator) can rename or delete.
type ChatroomService struct {
	DB *gorm.DB

	// NameMaxLen caps stored room names by rune length.
	NameMaxLen int
	// NameLocale drives title casing for auto-generated names.
	NameLocale language.Tag
}

// NewChatroomService constructs a ChatroomService with defaults for name
// handling.
func NewChatroomService(db *gorm.DB) *ChatroomService {
	return &ChatroomService{
		DB:         db,
		NameMaxLen: 60,
		NameLocale: language.Und,
	}
}

// Create inserts a new room with the creator as admin member. Direct rooms
// ignore the extra member list.
func (s *ChatroomService) Create(ctx context.Context, creatorID, name, roomType string, courseID *string, memberIDs []string) (*domain.Chatroom, error) {
	if roomType == "" {
		roomType = roomTypeDirect
	}
	if roomType != roomTypeDirect && roomType != roomTypeGroup {
		return nil, ErrInvalidRoomType
	}
	if roomType == roomTypeDirect {
		memberIDs = nil
	}

	name = normalizeName(name)
	if name == "" {
		name = defaultRoomName
	}
	return repo.CreateChatroom(ctx, s.DB, creatorID, s.clip(name), roomType, courseID, memberIDs)
}

// List returns every room the user is a member of.
func (s *ChatroomService) List(ctx context.Context, userID string) ([]domain.Chatroom, error) {
	return repo.ListChatrooms(ctx, s.DB, userID)
}

// Get fetches one room the user is a member of.
func (s *ChatroomService) Get(ctx context.Context, userID, roomID string) (*domain.Chatroom, error) {
	room, err := repo.GetChatroom(ctx, s.DB, roomID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatroomNotFound
		}
		return nil, err
	}
	return room, nil
}

// Rename changes a room's name. Admin only.
func (s *ChatroomService) Rename(ctx context.Context, userID, roomID, name string) error {
	if err := s.requireAdmin(ctx, userID, roomID); err != nil {
		return err
	}
	name = normalizeName(name)
	if name == "" {
		name = "Untitled"
	}
	return repo.RenameChatroom(ctx, s.DB, roomID, s.clip(name))
}

// Delete removes a room and its memberships. Admin only.
func (s *ChatroomService) Delete(ctx context.Context, userID, roomID string) error {
	if err := s.requireAdmin(ctx, userID, roomID); err != nil {
		return err
	}
	return repo.DeleteChatroom(ctx, s.DB, roomID)
}

// Messages returns a page of the room's messages in chronological order,
// verifying the caller's membership first.
func (s *ChatroomService) Messages(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := s.Get(ctx, userID, roomID); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountMessages(s.DB.WithContext(ctx), roomID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), roomID, offset, pageSize)
	return items, total, err
}

// MaybeAutoTitle renames a placeholder room after its first prompt. Failures
// are swallowed: a stale name never fails a turn.
func (s *ChatroomService) MaybeAutoTitle(ctx context.Context, roomID, currentName, prompt string) string {
	if !isPlaceholderName(currentName) {
		return currentName
	}
	gen := s.generateNameFromPrompt(prompt)
	if gen == "" {
		return currentName
	}
	gen = s.clip(gen)
	if err := repo.RenameChatroom(ctx, s.DB, roomID, gen); err != nil {
		return currentName
	}
	return gen
}

// requireAdmin checks membership and the admin flag, mapping a missing
// membership to ErrChatroomNotFound so room existence is not leaked.
func (s *ChatroomService) requireAdmin(ctx context.Context, userID, roomID string) error {
	member, err := repo.GetMembership(ctx, s.DB, roomID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChatroomNotFound
		}
		return err
	}
	if !member.IsAdmin {
		return ErrNotAdmin
	}
	return nil
}

func isPlaceholderName(name string) bool {
	n := strings.TrimSpace(strings.ToLower(name))
	return n == "" || n == strings.ToLower(defaultRoomName) || n == "untitled"
}

// generateNameFromPrompt derives a concise room name from the prompt.
func (s *ChatroomService) generateNameFromPrompt(prompt string) string {
	toks := nameWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}

	caser := cases.Title(s.localeOrDefault())
	out := make([]string, 0, 6)
	for _, w := range toks {
		if _, skip := nameStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) >= 6 {
			break
		}
	}
	return strings.Join(out, " ")
}

func (s *ChatroomService) localeOrDefault() language.Tag {
	if s.NameLocale == language.Und {
		return language.English
	}
	return s.NameLocale
}

// clip truncates a room name to the configured maximum rune length.
func (s *ChatroomService) clip(name string) string {
	max := s.NameMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(name) > max {
		return string([]rune(name)[:max])
	}
	return name
}

// normalizeName trims whitespace and collapses runs of it to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	nameWordRE   = regexp.MustCompile(`[\p{L}\p{N}]+`)

	nameStopWords = map[string]struct{}{
		"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {},
		"to": {}, "for": {}, "in": {}, "on": {}, "at": {}, "is": {},
		"are": {}, "can": {}, "you": {}, "i": {}, "my": {}, "me": {},
		"please": {}, "what": {}, "when": {}, "how": {}, "do": {}, "does": {},
	}
)
