package types

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type SessionID string
type TurnID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// NewTurnID returns a short URL-safe identifier. Turn IDs only need to be
// unique within a session.
func NewTurnID() TurnID {
	id, err := gonanoid.New()
	if err != nil {
		return TurnID(uuid.New().String())
	}
	return TurnID(id)
}
