package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/amazona/backend/internal/config"
	"github.com/amazona/backend/internal/db"
	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/model"
	tmpl "github.com/amazona/backend/internal/template"
	"github.com/amazona/backend/internal/token"
)

const (
	maxPasswordBytes = 72
	mailTimeout      = 15 * time.Second
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidToken       = token.ErrInvalidToken
	ErrExpiredToken       = token.ErrExpiredToken
	ErrForbidden          = errors.New("admin required")
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("email already registered")
	ErrProtectedUser      = errors.New("bootstrap admin can not be deleted")
	ErrProtectedEmail     = errors.New("bootstrap admin email can not change")
	ErrPasswordRequired   = errors.New("password is required")
	ErrMisconfigured      = errors.New("user service config invalid")
)

// userStore - 사용자 저장소 인터페이스 (db.Postgres가 구현)
type userStore interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByResetToken(ctx context.Context, token string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, user *model.User) (*model.User, error)
	SetResetToken(ctx context.Context, id uuid.UUID, token string) error
	ResetPassword(ctx context.Context, id uuid.UUID, token, passwordHash string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// mailer - out-of-band 메시지 전송 인터페이스
type mailer interface {
	Send(ctx context.Context, msg model.MailMessage) error
}

type UserService struct {
	store      userStore
	codec      *token.Codec
	mail       mailer
	log        *logger.Logger
	sessionTTL time.Duration
	resetTTL   time.Duration
	bcryptCost int
	baseURL    string
	admin      config.AdminConfig

	deliveries sync.WaitGroup
}

func NewUserService(store userStore, codec *token.Codec, mail mailer, log *logger.Logger, auth config.AuthConfig, admin config.AdminConfig) (*UserService, error) {
	if codec == nil {
		return nil, fmt.Errorf("%w: token codec is required", ErrMisconfigured)
	}
	if auth.SessionTTL <= 0 || auth.ResetTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrMisconfigured)
	}
	if strings.TrimSpace(admin.Email) == "" {
		return nil, fmt.Errorf("%w: ADMIN_EMAIL is required", ErrMisconfigured)
	}
	cost := auth.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &UserService{
		store:      store,
		codec:      codec,
		mail:       mail,
		log:        log,
		sessionTTL: auth.SessionTTL,
		resetTTL:   auth.ResetTTL,
		bcryptCost: cost,
		baseURL:    auth.BaseURL,
		admin:      admin,
	}, nil
}

// IsBootstrapAdmin reports whether u is the protected bootstrap identity.
func (s *UserService) IsBootstrapAdmin(u *model.User) bool {
	return u != nil && u.Email == s.admin.Email
}

// RequireAdmin fails with ErrForbidden unless u carries the admin flag.
func RequireAdmin(u *model.User) error {
	if u == nil || !u.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// EnsureAdmin creates the bootstrap identity on first start and restores its
// admin flag if it was ever lost.
func (s *UserService) EnsureAdmin(ctx context.Context) error {
	existing, err := s.store.GetUserByEmail(ctx, s.admin.Email)
	if err == nil {
		if existing.IsAdmin {
			return nil
		}
		existing.IsAdmin = true
		_, err = s.store.UpdateUser(ctx, existing)
		return err
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	if strings.TrimSpace(s.admin.Password) == "" {
		return fmt.Errorf("%w: ADMIN_PASSWORD is required to create %s", ErrMisconfigured, s.admin.Email)
	}
	hash, err := s.hashPassword(s.admin.Password)
	if err != nil {
		return err
	}

	name := s.admin.Name
	if strings.TrimSpace(name) == "" {
		name = "Admin"
	}
	_, err = s.store.CreateUser(ctx, &model.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        s.admin.Email,
		PasswordHash: hash,
		IsAdmin:      true,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil
	}
	return err
}

// Authenticate verifies a session credential and loads its subject. The
// store is read on every call.
func (s *UserService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingCredential
	}

	id, err := s.codec.Verify(tokenString, token.KindSession)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: subject %s no longer exists", ErrInvalidToken, id)
		}
		return nil, err
	}
	return user, nil
}

// SessionToken issues a session credential for u.
func (s *UserService) SessionToken(u *model.User) (string, error) {
	tok, _, err := s.codec.Issue(u.ID, token.KindSession, s.sessionTTL)
	return tok, err
}

func (s *UserService) Signup(ctx context.Context, req model.SignupRequest) (*model.User, string, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, "", ErrInvalidInput
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, "", err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.store.CreateUser(ctx, &model.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, "", ErrConflict
		}
		return nil, "", err
	}

	tok, err := s.SessionToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, tok, nil
}

func (s *UserService) Signin(ctx context.Context, req model.SigninRequest) (*model.User, string, error) {
	if req.Email == "" || req.Password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	tok, err := s.SessionToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, tok, nil
}

// UpdateProfile applies the non-empty fields of req to the caller's own
// account and returns a fresh session credential.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, req model.ProfileUpdateRequest) (*model.User, string, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if err := s.applyIdentityFields(user, req.Name, req.Email); err != nil {
		return nil, "", err
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return nil, "", err
		}
		hash, err := s.hashPassword(req.Password)
		if err != nil {
			return nil, "", err
		}
		user.PasswordHash = hash
	}

	updated, err := s.save(ctx, user)
	if err != nil {
		return nil, "", err
	}
	tok, err := s.SessionToken(updated)
	if err != nil {
		return nil, "", err
	}
	return updated, tok, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// AdminUpdate edits another account. The bootstrap admin always keeps its
// admin flag.
func (s *UserService) AdminUpdate(ctx context.Context, id uuid.UUID, req model.AdminUpdateRequest) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	bootstrap := s.IsBootstrapAdmin(user)
	if err := s.applyIdentityFields(user, req.Name, req.Email); err != nil {
		return nil, err
	}
	user.IsAdmin = req.IsAdmin || bootstrap

	return s.save(ctx, user)
}

func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.IsBootstrapAdmin(user) {
		return ErrProtectedUser
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ForgotPassword stores a fresh reset credential on the account, replacing
// any pending one, and mails the redemption link. Delivery happens in the
// background; its failure is logged and never reported to the caller.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return ErrNotFound
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	resetToken, expiresAt, err := s.codec.Issue(user.ID, token.KindReset, s.resetTTL)
	if err != nil {
		return err
	}
	if err := s.store.SetResetToken(ctx, user.ID, resetToken); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	userData := tmpl.UserDataFromModel(user)
	resetData := tmpl.ResetData{URL: tmpl.ResetURL(s.baseURL, resetToken), ExpiresAt: expiresAt}
	s.dispatch(ctx, model.MailMessage{
		To:      (&mail.Address{Name: user.Name, Address: user.Email}).String(),
		Subject: tmpl.DefaultResetSubject,
		HTML:    tmpl.RenderBody(tmpl.DefaultResetBody, &userData, &resetData),
	})
	return nil
}

// ResetPassword redeems a reset credential. The credential must verify and
// must equal the value stored on the account; redemption clears it.
func (s *UserService) ResetPassword(ctx context.Context, resetToken, password string) error {
	subject, err := s.codec.Verify(resetToken, token.KindReset)
	if err != nil {
		return err
	}

	user, err := s.store.GetUserByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.ID != subject {
		return ErrNotFound
	}

	if password == "" {
		return ErrPasswordRequired
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}

	if err := s.store.ResetPassword(ctx, user.ID, resetToken, hash); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Close waits for background mail deliveries until ctx is done.
func (s *UserService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *UserService) dispatch(ctx context.Context, msg model.MailMessage) {
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		if err := s.mail.Send(sendCtx, msg); err != nil {
			s.log.ErrorContext(sendCtx, "failed to deliver mail", "to", msg.To, "subject", msg.Subject, "error", err)
			return
		}
		s.log.InfoContext(sendCtx, "mail delivered", "to", msg.To, "subject", msg.Subject)
	}()
}

func (s *UserService) applyIdentityFields(user *model.User, name, email string) error {
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if email = strings.TrimSpace(email); email != "" && email != user.Email {
		if s.IsBootstrapAdmin(user) {
			return ErrProtectedEmail
		}
		user.Email = email
	}
	return nil
}

func (s *UserService) save(ctx context.Context, user *model.User) (*model.User, error) {
	updated, err := s.store.UpdateUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, db.ErrDuplicate):
			return nil, ErrConflict
		}
		return nil, err
	}
	return updated, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func validatePassword(password string) error {
	if password == "" || len(password) > maxPasswordBytes {
		return ErrInvalidInput
	}
	return nil
}
