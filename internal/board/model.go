package board

import (
	"time"

	"github.com/lib/pq"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Board struct {
	ID        uint64    `gorm:"primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	OwnerID   uint64    `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// BoardMember grants a user access to a board. Reminder recipients must be
// board members at plan time and at fire time.
type BoardMember struct {
	ID        uint64    `gorm:"primaryKey"`
	BoardID   uint64    `gorm:"not null;uniqueIndex:uq_board_members,priority:1"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uq_board_members,priority:2;index"`
	Role      string    `gorm:"type:text;not null;default:'member'"`
	CreatedAt time.Time `gorm:"not null"`
}

type List struct {
	ID        uint64    `gorm:"primaryKey"`
	BoardID   uint64    `gorm:"index;not null"`
	Name      string    `gorm:"type:text;not null"`
	Position  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
}

type Card struct {
	ID          uint64 `gorm:"primaryKey"`
	ListID      uint64 `gorm:"index;not null"`
	Name        string `gorm:"type:text;not null"`
	Description string `gorm:"type:text;not null;default:''"`
	// stored as a postgres array literal so the column works on every driver
	Labels pq.StringArray `gorm:"type:text;not null;default:'{}'"`

	DueAt           *time.Time
	ReminderMinutes *int
	DueComplete     bool `gorm:"not null;default:false"`
	Completed       bool `gorm:"not null;default:false"`

	Position  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// CardMember assigns a user to a card. Rows are kept in insertion order.
type CardMember struct {
	ID        uint64    `gorm:"primaryKey"`
	CardID    uint64    `gorm:"not null;uniqueIndex:uq_card_members,priority:1"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uq_card_members,priority:2;index"`
	CreatedAt time.Time `gorm:"not null"`
}
