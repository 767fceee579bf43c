// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package contact stores messages submitted through the public contact form.
package contact

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Error codes.
const (
	CodeInvalid  = "CONTACT_INVALID"
	CodeNotFound = "CONTACT_NOT_FOUND"
)

// Field length limits, in characters.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxSubjectLength = 200
	MaxMessageLength = 5000
)

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("contact message not found")

// Message is a stored contact form submission.
type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission is the user-supplied part of a Message.
type Submission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Validate trims s in place and checks every field.
func (s *Submission) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Subject = strings.TrimSpace(s.Subject)
	s.Message = strings.TrimSpace(s.Message)

	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"name", s.Name, MaxNameLength},
		{"email", s.Email, MaxEmailLength},
		{"subject", s.Subject, MaxSubjectLength},
		{"message", s.Message, MaxMessageLength},
	}
	for _, f := range fields {
		if f.value == "" {
			return oops.Code(CodeInvalid).With("field", f.name).Errorf("%s is required", f.name)
		}
		if utf8.RuneCountInString(f.value) > f.max {
			return oops.Code(CodeInvalid).
				With("field", f.name).
				With("max", f.max).
				Errorf("%s must be at most %d characters", f.name, f.max)
		}
	}

	addr, err := mail.ParseAddress(s.Email)
	if err != nil || addr.Address != s.Email {
		return oops.Code(CodeInvalid).With("field", "email").Errorf("email is not a valid address")
	}
	return nil
}

// Store holds messages in memory. Ids start at 1 and are never reused.
type Store struct {
	mu       sync.RWMutex
	messages map[int64]Message
	nextID   int64
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		messages: make(map[int64]Message),
		nextID:   1,
		now:      time.Now,
	}
}

// Submit validates sub and stores it.
func (s *Store) Submit(_ context.Context, sub Submission) (Message, error) {
	if err := sub.Validate(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        s.nextID,
		Name:      sub.Name,
		Email:     sub.Email,
		Subject:   sub.Subject,
		Message:   sub.Message,
		CreatedAt: s.now(),
	}
	s.nextID++
	s.messages[msg.ID] = msg
	return msg, nil
}

// List returns all messages ordered by id.
func (s *Store) List(_ context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes the message with id.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return oops.Code(CodeNotFound).With("id", id).Wrap(ErrNotFound)
	}
	delete(s.messages, id)
	return nil
}
