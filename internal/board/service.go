package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskboard/internal/auth"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyMember = errors.New("already a member")
)

// Replanner recomputes a card's reminder jobs.
type Replanner interface {
	Refresh(ctx context.Context, cardID uint64) error
}

type Service struct {
	DB        *gorm.DB
	Reminders Replanner
}

type CardInput struct {
	Name            string
	Description     string
	Labels          []string
	DueAt           *time.Time
	ReminderMinutes *int
}

// CardPatch holds optional changes; nil fields are left alone.
type CardPatch struct {
	Name                 *string
	Description          *string
	Labels               *[]string
	DueAt                *time.Time
	ClearDueAt           bool
	ReminderMinutes      *int
	ClearReminderMinutes bool
	DueComplete          *bool
	Completed            *bool
}

func (p CardPatch) touchesReminders() bool {
	return p.DueAt != nil || p.ClearDueAt ||
		p.ReminderMinutes != nil || p.ClearReminderMinutes ||
		p.DueComplete != nil || p.Completed != nil
}

func (s *Service) CreateBoard(ctx context.Context, ownerID uint64, name string) (Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Board{}, ErrInvalidInput
	}

	b := Board{Name: name, OwnerID: ownerID}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
		return tx.Create(&BoardMember{BoardID: b.ID, UserID: ownerID, Role: RoleOwner}).Error
	})
	return b, err
}

func (s *Service) IsMember(ctx context.Context, boardID, userID uint64) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&BoardMember{}).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Count(&n).Error
	return n > 0, err
}

func (s *Service) requireMember(ctx context.Context, boardID, userID uint64) error {
	ok, err := s.IsMember(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Service) AddMember(ctx context.Context, actorID, boardID uint64, email string) (BoardMember, error) {
	if err := s.requireMember(ctx, boardID, actorID); err != nil {
		return BoardMember{}, err
	}

	var u auth.User
	email = strings.TrimSpace(strings.ToLower(email))
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BoardMember{}, ErrNotFound
		}
		return BoardMember{}, err
	}

	m := BoardMember{BoardID: boardID, UserID: u.ID, Role: RoleMember}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return BoardMember{}, res.Error
	}
	if res.RowsAffected == 0 {
		return BoardMember{}, ErrAlreadyMember
	}

	// a returning member may still be assigned to cards
	s.replanAssigned(ctx, boardID, u.ID)
	return m, nil
}

// RemoveMember is allowed for the board owner or the member themselves.
// The owner cannot leave.
func (s *Service) RemoveMember(ctx context.Context, actorID, boardID, userID uint64) error {
	var b Board
	if err := s.DB.WithContext(ctx).First(&b, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if actorID != b.OwnerID && actorID != userID {
		return ErrForbidden
	}
	if userID == b.OwnerID {
		return ErrInvalidInput
	}

	res := s.DB.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Delete(&BoardMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	s.replanAssigned(ctx, boardID, userID)
	return nil
}

func (s *Service) CreateList(ctx context.Context, actorID, boardID uint64, name string) (List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return List{}, ErrInvalidInput
	}
	if err := s.requireMember(ctx, boardID, actorID); err != nil {
		return List{}, err
	}

	var pos int64
	if err := s.DB.WithContext(ctx).Model(&List{}).Where("board_id = ?", boardID).Count(&pos).Error; err != nil {
		return List{}, err
	}

	l := List{BoardID: boardID, Name: name, Position: int(pos)}
	return l, s.DB.WithContext(ctx).Create(&l).Error
}

func (s *Service) CreateCard(ctx context.Context, actorID, listID uint64, in CardInput) (Card, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Card{}, ErrInvalidInput
	}
	if in.ReminderMinutes != nil && *in.ReminderMinutes < 0 {
		return Card{}, ErrInvalidInput
	}

	var l List
	if err := s.DB.WithContext(ctx).First(&l, listID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	if err := s.requireMember(ctx, l.BoardID, actorID); err != nil {
		return Card{}, err
	}

	var pos int64
	if err := s.DB.WithContext(ctx).Model(&Card{}).Where("list_id = ?", listID).Count(&pos).Error; err != nil {
		return Card{}, err
	}

	c := Card{
		ListID:          listID,
		Name:            in.Name,
		Description:     in.Description,
		Labels:          pq.StringArray(normalizeLabels(in.Labels)),
		DueAt:           normalizeDue(in.DueAt),
		ReminderMinutes: in.ReminderMinutes,
		Position:        int(pos),
	}
	if err := s.DB.WithContext(ctx).Create(&c).Error; err != nil {
		return Card{}, err
	}

	s.replan(ctx, c.ID)
	return c, nil
}

// cardBoard loads a card and the board it lives on, checking membership.
func (s *Service) cardBoard(ctx context.Context, tx *gorm.DB, actorID, cardID uint64, lock bool) (Card, uint64, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var c Card
	if err := q.First(&c, cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Card{}, 0, ErrNotFound
		}
		return Card{}, 0, err
	}

	var l List
	if err := tx.WithContext(ctx).First(&l, c.ListID).Error; err != nil {
		return Card{}, 0, fmt.Errorf("list of card %d: %w", cardID, err)
	}
	if err := s.requireMemberTx(ctx, tx, l.BoardID, actorID); err != nil {
		return Card{}, 0, err
	}
	return c, l.BoardID, nil
}

func (s *Service) requireMemberTx(ctx context.Context, tx *gorm.DB, boardID, userID uint64) error {
	var n int64
	if err := tx.WithContext(ctx).Model(&BoardMember{}).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrForbidden
	}
	return nil
}

func (s *Service) GetCard(ctx context.Context, actorID, cardID uint64) (Card, error) {
	c, _, err := s.cardBoard(ctx, s.DB, actorID, cardID, false)
	return c, err
}

func (s *Service) UpdateCard(ctx context.Context, actorID, cardID uint64, p CardPatch) (Card, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Card{}, ErrInvalidInput
	}
	if p.ReminderMinutes != nil && *p.ReminderMinutes < 0 {
		return Card{}, ErrInvalidInput
	}

	var c Card
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, _, err = s.cardBoard(ctx, tx, actorID, cardID, true)
		if err != nil {
			return err
		}

		if p.Name != nil {
			c.Name = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			c.Description = *p.Description
		}
		if p.Labels != nil {
			c.Labels = pq.StringArray(normalizeLabels(*p.Labels))
		}
		switch {
		case p.ClearDueAt:
			c.DueAt = nil
		case p.DueAt != nil:
			c.DueAt = normalizeDue(p.DueAt)
		}
		switch {
		case p.ClearReminderMinutes:
			c.ReminderMinutes = nil
		case p.ReminderMinutes != nil:
			m := *p.ReminderMinutes
			c.ReminderMinutes = &m
		}
		if p.DueComplete != nil {
			c.DueComplete = *p.DueComplete
		}
		if p.Completed != nil {
			c.Completed = *p.Completed
		}

		return tx.Save(&c).Error
	})
	if err != nil {
		return Card{}, err
	}

	if p.touchesReminders() {
		s.replan(ctx, c.ID)
	}
	return c, nil
}

func (s *Service) DeleteCard(ctx context.Context, actorID, cardID uint64) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := s.cardBoard(ctx, tx, actorID, cardID, true); err != nil {
			return err
		}
		if err := tx.Where("card_id = ?", cardID).Delete(&CardMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Card{}, cardID).Error
	})
	if err != nil {
		return err
	}

	s.replan(ctx, cardID)
	return nil
}

// AssignMember adds a board member to a card.
func (s *Service) AssignMember(ctx context.Context, actorID, cardID, userID uint64) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, boardID, err := s.cardBoard(ctx, tx, actorID, cardID, false)
		if err != nil {
			return err
		}
		if err := s.requireMemberTx(ctx, tx, boardID, userID); err != nil {
			if errors.Is(err, ErrForbidden) {
				return ErrInvalidInput
			}
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&CardMember{CardID: cardID, UserID: userID}).Error
	})
	if err != nil {
		return err
	}

	s.replan(ctx, cardID)
	return nil
}

func (s *Service) UnassignMember(ctx context.Context, actorID, cardID, userID uint64) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := s.cardBoard(ctx, tx, actorID, cardID, false); err != nil {
			return err
		}
		return tx.Where("card_id = ? AND user_id = ?", cardID, userID).Delete(&CardMember{}).Error
	})
	if err != nil {
		return err
	}

	s.replan(ctx, cardID)
	return nil
}

// replan is best-effort: the mutation already committed and the next
// relevant mutation replans again.
func (s *Service) replan(ctx context.Context, cardID uint64) {
	if s.Reminders == nil {
		return
	}
	if err := s.Reminders.Refresh(ctx, cardID); err != nil {
		log.Error().Err(err).Uint64("card_id", cardID).Msg("replan reminders")
	}
}

func (s *Service) replanAssigned(ctx context.Context, boardID, userID uint64) {
	var cardIDs []uint64
	err := s.DB.WithContext(ctx).Model(&CardMember{}).
		Joins("join cards on cards.id = card_members.card_id").
		Joins("join lists on lists.id = cards.list_id").
		Where("lists.board_id = ? AND card_members.user_id = ?", boardID, userID).
		Pluck("card_members.card_id", &cardIDs).Error
	if err != nil {
		log.Error().Err(err).Uint64("board_id", boardID).Uint64("user_id", userID).Msg("list assigned cards")
		return
	}
	for _, id := range cardIDs {
		s.replan(ctx, id)
	}
}

func normalizeDue(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

// normalizeLabels trims, lowercases and dedupes labels, keeping order.
func normalizeLabels(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
