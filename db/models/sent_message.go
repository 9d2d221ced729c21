package models

import "time"

// SentMessage records an event id the bot sent, so replies to it can be
// recognized across restarts.
type SentMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventID   string `gorm:"size:255;not null;uniqueIndex"`
	RoomID    string `gorm:"size:255;not null;index"`
	CreatedAt time.Time
}
