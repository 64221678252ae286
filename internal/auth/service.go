/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

// Account validation limits.
const (
	MinNameLength     = 2
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
)

var (
	// ErrEmailTaken is returned by Signup for an already registered address.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError lists per-field problems with signup input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// SignupInput is the data needed to create an account.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate normalizes the input in place and reports field errors.
func (in *SignupInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)

	fields := make(map[string]string)
	if len([]rune(in.Name)) < MinNameLength {
		fields["name"] = fmt.Sprintf("must be at least %d characters", MinNameLength)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields["email"] = "must be a valid email address"
	}
	switch {
	case len(in.Password) < MinPasswordLength:
		fields["password"] = fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	case len(in.Password) > MaxPasswordLength:
		fields["password"] = fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Service manages accounts and password login.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	cost   int
}

// NewService creates the account service. bus may be nil.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "auth").Logger(),
		cost:   bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Signup validates input, hashes the password and stores a new attendee.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		telemetry.AuthAttemptsTotal.WithLabelValues("signup", "invalid").Inc()
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing > 0 {
		telemetry.AuthAttemptsTotal.WithLabelValues("signup", "duplicate").Inc()
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:       uuid.NewString(),
		Email:    in.Email,
		Name:     in.Name,
		Password: string(hash),
		Role:     models.RoleAttendee,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("signup", "ok").Inc()
	s.publish(events.EventAuditSignup, events.Payload{"user_id": user.ID, "user_email": user.Email})
	s.logger.Info().Str("user_id", user.ID).Msg("account created")
	return user, nil
}

// Login checks credentials and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn comparable time so unknown emails are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.loginFailed(email)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.loginFailed(email)
		return nil, ErrInvalidCredentials
	}

	telemetry.AuthAttemptsTotal.WithLabelValues("login", "ok").Inc()
	s.publish(events.EventAuditLogin, events.Payload{"user_id": user.ID, "user_email": user.Email})
	return &user, nil
}

// UserByID loads one account.
func (s *Service) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByEmail loads one account by address.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IssueSession signs a session token for user.
func IssueSession(secret []byte, user *models.User, ttl time.Duration) (string, error) {
	return Issue(secret, Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  []string{string(user.Role)},
	}, ttl)
}

func (s *Service) loginFailed(email string) {
	telemetry.AuthAttemptsTotal.WithLabelValues("login", "failed").Inc()
	s.publish(events.EventAuditLoginFailed, events.Payload{"user_email": email})
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("confplanner-dummy-password"), bcrypt.DefaultCost)
