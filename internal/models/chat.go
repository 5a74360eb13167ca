package models

import (
	"strings"
	"time"
)

// Chat senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// DefaultChatTitle is used when a chat is created without a title.
const DefaultChatTitle = "New Chat"

// Chat is a conversation between a caregiver and the assistant, optionally about one child.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   int64     `json:"owner_id"`
	ChildID   *int64    `json:"child_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one message within a chat.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Message   string    `json:"message"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks a chat message before storage.
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return ErrEmptyMessage
	}
	if m.Sender != SenderUser && m.Sender != SenderAssistant {
		return ErrInvalidSender
	}
	return nil
}

// ChatCreateRequest represents the payload for creating a chat.
type ChatCreateRequest struct {
	Title   string `json:"title,omitempty"`
	OwnerID int64  `json:"owner_id"`
	ChildID *int64 `json:"child_id,omitempty"`
}

// Validate validates a ChatCreateRequest and applies defaults.
func (r *ChatCreateRequest) Validate() error {
	if r.OwnerID <= 0 {
		return ErrMissingCarer
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		r.Title = DefaultChatTitle
	}
	if len(r.Title) > MaxChatTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// ChatUpdateRequest represents the payload for renaming a chat.
type ChatUpdateRequest struct {
	Title string `json:"title"`
}

// ChatRequest is a question for the assistant. ChildID and CarerID are required on the
// contextual endpoints; ChatID optionally persists the exchange.
type ChatRequest struct {
	Message string `json:"message"`
	ChildID int64  `json:"child_id,omitempty"`
	CarerID int64  `json:"carer_id,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
}

// Validate validates a general ChatRequest.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxChatMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateContextual validates a ChatRequest that targets a specific child.
func (r *ChatRequest) ValidateContextual() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ChildID <= 0 {
		return ErrMissingChild
	}
	if r.CarerID <= 0 {
		return ErrMissingCarer
	}
	return nil
}
