package domain

import "time"

type (
	RoomName string
	RoomID   string
)

const RoomIDLen = 8

// Room is immutable after creation; it only goes away through deletion.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      RoomName  `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}
