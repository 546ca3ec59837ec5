package app

import (
	"fmt"

	"github.com/dkeye/Parley/internal/domain"
	nanoid "github.com/jaevor/go-nanoid"
)

const roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomCodeFunc yields a candidate room id. Uniqueness is checked by the directory.
type RoomCodeFunc func() domain.RoomID

func NewRoomCodes() (RoomCodeFunc, error) {
	gen, err := nanoid.CustomASCII(roomCodeAlphabet, domain.RoomIDLen)
	if err != nil {
		return nil, fmt.Errorf("room code generator: %w", err)
	}
	return func() domain.RoomID { return domain.RoomID(gen()) }, nil
}

func IsValidRoomCode(id domain.RoomID) bool {
	if len(id) != domain.RoomIDLen {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
