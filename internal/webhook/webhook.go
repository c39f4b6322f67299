// Package webhook applies identity-provider user lifecycle events to the local user table.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/pavelanni/testmaker/internal/model"
	"github.com/pavelanni/testmaker/internal/store"
)

// Event types handled by Syncer.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Signature headers sent with every delivery.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

var (
	// ErrMissingHeaders is returned when a delivery lacks the signature headers.
	ErrMissingHeaders = errors.New("missing svix headers")
	// ErrInvalidSignature is returned when the payload signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Event is a webhook delivery envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EmailAddress is one address on a user payload.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the user payload carried by user.* events.
type UserData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
}

// PrimaryEmail returns the primary address, falling back to the first one.
func (u UserData) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// DisplayName joins first and last name, falling back to the email.
func (u UserData) DisplayName() string {
	if name := u.fullName(); name != "" {
		return name
	}
	return u.PrimaryEmail()
}

func (u UserData) fullName() string {
	var first, last string
	if u.FirstName != nil {
		first = *u.FirstName
	}
	if u.LastName != nil {
		last = *u.LastName
	}
	return strings.TrimSpace(first + " " + last)
}

// Verifier checks delivery signatures.
type Verifier struct {
	wh *svix.Webhook
}

// NewVerifier creates a Verifier for a whsec_ signing secret.
func NewVerifier(secret string) (*Verifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("create webhook verifier: %w", err)
	}
	return &Verifier{wh: wh}, nil
}

// Verify checks the signature of payload and decodes the event envelope.
func (v *Verifier) Verify(payload []byte, headers http.Header) (*Event, error) {
	if headers.Get(HeaderID) == "" || headers.Get(HeaderTimestamp) == "" || headers.Get(HeaderSignature) == "" {
		return nil, ErrMissingHeaders
	}
	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &evt, nil
}

// UserStore is the subset of the store the Syncer needs.
type UserStore interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	UpdateUserByExternalID(ctx context.Context, externalID, email, name string) (*model.User, error)
	DeleteUserByExternalID(ctx context.Context, externalID string) error
}

// Syncer mirrors user lifecycle events into the local store.
type Syncer struct {
	users UserStore
}

// NewSyncer creates a Syncer.
func NewSyncer(users UserStore) *Syncer {
	return &Syncer{users: users}
}

// Apply processes one event. Unknown event types are ignored.
func (s *Syncer) Apply(ctx context.Context, evt *Event) error {
	slog.Info("webhook received", "type", evt.Type)

	switch evt.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
	default:
		slog.Info("unhandled webhook type", "type", evt.Type)
		return nil
	}

	var data UserData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return fmt.Errorf("decode %s data: %w", evt.Type, err)
	}
	if data.ID == "" {
		return fmt.Errorf("%s: missing user id", evt.Type)
	}

	switch evt.Type {
	case EventUserCreated:
		return s.userCreated(ctx, data)
	case EventUserUpdated:
		return s.userUpdated(ctx, data)
	default:
		return s.userDeleted(ctx, data)
	}
}

func (s *Syncer) userCreated(ctx context.Context, data UserData) error {
	if len(data.EmailAddresses) == 0 {
		slog.Warn("no email addresses on user, skipping", "external_id", data.ID)
		return nil
	}

	existing, err := s.users.GetUserByExternalID(ctx, data.ID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		slog.Info("user already exists, skipping creation", "external_id", data.ID)
		return nil
	}

	if _, err := s.users.CreateUser(ctx, model.User{
		ExternalID: data.ID,
		Email:      data.PrimaryEmail(),
		Name:       data.DisplayName(),
	}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// userUpdated applies only the fields the event carries. A payload without
// email addresses keeps the stored email. One without a first or last name
// keeps the stored name.
func (s *Syncer) userUpdated(ctx context.Context, data UserData) error {
	existing, err := s.users.GetUserByExternalID(ctx, data.ID)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if existing == nil {
		slog.Info("user not found for update, creating", "external_id", data.ID)
		return s.userCreated(ctx, data)
	}

	email := data.PrimaryEmail()
	if email == "" {
		email = existing.Email
	}
	name := data.fullName()
	if name == "" {
		name = existing.Name
	}
	if name == "" {
		name = email
	}
	if email == existing.Email && name == existing.Name {
		slog.Debug("user unchanged, skipping update", "external_id", data.ID)
		return nil
	}

	_, err = s.users.UpdateUserByExternalID(ctx, data.ID, email, name)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("user removed before update, recreating", "external_id", data.ID)
		return s.userCreated(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *Syncer) userDeleted(ctx context.Context, data UserData) error {
	err := s.users.DeleteUserByExternalID(ctx, data.ID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("user not found for deletion, already removed", "external_id", data.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
