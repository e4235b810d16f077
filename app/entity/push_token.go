package entity

import "time"

type PushToken struct {
	Token          string
	UserID         string
	LastAccessedAt time.Time
	CreatedAt      time.Time
}
