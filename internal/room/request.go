package room

import (
	"fmt"
	"strings"
)

// MissingFieldsMessage is the prompt shown when a join form is incomplete.
const MissingFieldsMessage = "Both room name and username are required"

// JoinRequest names the room to join and the identity to join as.
type JoinRequest struct {
	Room     string
	Username string
}

// ValidationError reports a JoinRequest field that is empty after trimming.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("room: %s is required", e.Field)
}

// NewJoinRequest trims room and username and validates the result.
func NewJoinRequest(room, username string) (JoinRequest, error) {
	req := JoinRequest{
		Room:     strings.TrimSpace(room),
		Username: strings.TrimSpace(username),
	}
	if err := req.Validate(); err != nil {
		return JoinRequest{}, err
	}
	return req, nil
}

// Validate reports the first field that is blank.
func (r JoinRequest) Validate() error {
	if strings.TrimSpace(r.Room) == "" {
		return &ValidationError{Field: "room"}
	}
	if strings.TrimSpace(r.Username) == "" {
		return &ValidationError{Field: "username"}
	}
	return nil
}
