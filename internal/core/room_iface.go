package core

import (
	"github.com/dkeye/Parley/internal/domain"
)

type RoomInfo struct {
	domain.Room
	ParticipantCount int `json:"participantCount"`
}

// RoomDirectory is the registry of rooms and their participant records.
// It knows nothing about transports.
type RoomDirectory interface {
	CreateRoom(id domain.RoomID, name domain.RoomName) (domain.Room, error)
	GetRoom(id domain.RoomID) (domain.Room, bool)
	DeleteRoom(id domain.RoomID) error
	ListRooms() []RoomInfo

	ListParticipants(id domain.RoomID) []domain.Participant
	ParticipantCount(id domain.RoomID) int
	GetParticipant(id domain.RoomID, uid domain.UserID) (domain.Participant, bool)
	AddParticipant(id domain.RoomID, uid domain.UserID, role domain.Role) (domain.Participant, error)
	RemoveParticipant(id domain.RoomID, uid domain.UserID)
}
