package auth

import "time"

// User is also the reminder recipient identity: Email, Name and Timezone are
// read at fire time when a reminder is rendered.
type User struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"type:text;not null;default:''"`
	Timezone     string    `gorm:"type:text;not null;default:'UTC'"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}
