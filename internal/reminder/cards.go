package reminder

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrCardNotFound   = errors.New("card not found")
	ErrMemberNotFound = errors.New("board member not found")
)

// CardState is the slice of a card the scheduler cares about.
type CardState struct {
	ID              uint64
	BoardID         uint64
	Name            string
	DueAt           *time.Time
	ReminderMinutes *int
	DueComplete     bool
	Completed       bool
}

// Closed reports whether the card needs no reminders at all.
func (c CardState) Closed() bool {
	return c.DueAt == nil || c.DueComplete || c.Completed
}

type Recipient struct {
	UserID   uint64
	Email    string
	Name     string
	Timezone string
}

// CardReader is the read-only view of board data used by the planner and
// the dispatcher.
type CardReader interface {
	Card(ctx context.Context, cardID uint64) (CardState, error)
	// CardMembers returns card assignees that are still board members, in
	// assignment order. Duplicates are possible.
	CardMembers(ctx context.Context, cardID, boardID uint64) ([]Recipient, error)
	Member(ctx context.Context, boardID, userID uint64) (Recipient, error)
}

// GormCards reads the board tables directly.
type GormCards struct {
	DB *gorm.DB
}

type cardRow struct {
	ID              uint64     `gorm:"column:id"`
	BoardID         uint64     `gorm:"column:board_id"`
	Name            string     `gorm:"column:name"`
	DueAt           *time.Time `gorm:"column:due_at"`
	ReminderMinutes *int       `gorm:"column:reminder_minutes"`
	DueComplete     bool       `gorm:"column:due_complete"`
	Completed       bool       `gorm:"column:completed"`
}

type recipientRow struct {
	UserID   uint64 `gorm:"column:user_id"`
	Email    string `gorm:"column:email"`
	Name     string `gorm:"column:name"`
	Timezone string `gorm:"column:timezone"`
}

func (r recipientRow) recipient() Recipient {
	return Recipient{UserID: r.UserID, Email: r.Email, Name: r.Name, Timezone: r.Timezone}
}

func (g *GormCards) Card(ctx context.Context, cardID uint64) (CardState, error) {
	var row cardRow
	err := g.DB.WithContext(ctx).Table("cards").
		Select("cards.id, lists.board_id, cards.name, cards.due_at, cards.reminder_minutes, cards.due_complete, cards.completed").
		Joins("join lists on lists.id = cards.list_id").
		Where("cards.id = ?", cardID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CardState{}, ErrCardNotFound
		}
		return CardState{}, err
	}
	return CardState(row), nil
}

func (g *GormCards) CardMembers(ctx context.Context, cardID, boardID uint64) ([]Recipient, error) {
	var rows []recipientRow
	err := g.DB.WithContext(ctx).Table("card_members").
		Select("users.id as user_id, users.email, users.name, users.timezone").
		Joins("join board_members on board_members.user_id = card_members.user_id and board_members.board_id = ?", boardID).
		Joins("join users on users.id = card_members.user_id").
		Where("card_members.card_id = ?", cardID).
		Order("card_members.id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.recipient())
	}
	return out, nil
}

func (g *GormCards) Member(ctx context.Context, boardID, userID uint64) (Recipient, error) {
	var row recipientRow
	err := g.DB.WithContext(ctx).Table("board_members").
		Select("users.id as user_id, users.email, users.name, users.timezone").
		Joins("join users on users.id = board_members.user_id").
		Where("board_members.board_id = ? AND board_members.user_id = ?", boardID, userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Recipient{}, ErrMemberNotFound
		}
		return Recipient{}, err
	}
	return row.recipient(), nil
}

// Recipients resolves who should hear about a card, one entry per user.
func Recipients(ctx context.Context, cards CardReader, cardID, boardID uint64) ([]Recipient, error) {
	members, err := cards.CardMembers(ctx, cardID, boardID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{}, len(members))
	out := make([]Recipient, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}
