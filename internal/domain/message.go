// Package domain contains core domain types for the chat session core.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Origin identifies who produced a message.
type Origin string

const (
	// OriginUser marks messages typed by the local user.
	OriginUser Origin = "user"
	// OriginSystem marks banners, errors, simulated replies and inbound live frames.
	OriginSystem Origin = "system"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginUser || o == OriginSystem
}

// Message is a single entry in a session's message log.
// Messages are values; once appended they are never modified.
type Message struct {
	ID        string    `json:"id"`
	Origin    Origin    `json:"origin"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh unique ID stamped with the current time.
func NewMessage(origin Origin, body string) Message {
	return Message{
		ID:        NewMessageID(),
		Origin:    origin,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a user-origin message.
func NewUserMessage(body string) Message {
	return NewMessage(OriginUser, body)
}

// NewSystemMessage creates a system-origin message.
func NewSystemMessage(body string) Message {
	return NewMessage(OriginSystem, body)
}

// NewMessageID returns a process-unique, time-ordered message identifier.
func NewMessageID() string {
	return "msg_" + uuid.Must(uuid.NewV7()).String()
}

// IsUser returns true if the message was sent by the local user.
func (m Message) IsUser() bool {
	return m.Origin == OriginUser
}
