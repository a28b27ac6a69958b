// Package accesscode issues personal access codes and checks them at registration.
package accesscode

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/appointment-watch/internal/domain"
	pkgtoken "github.com/appointment-watch/internal/pkg/token"
	"github.com/appointment-watch/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const InvitationSubject = "Invitation for Appointment Watch!"

type Service interface {
	Issue(ctx context.Context, req domain.AccessCodeRequest) (*domain.IssuedAccessCode, error)
	Authorize(ctx context.Context, address, code string) error
}

type codeStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.AccessCode, error)
	UpsertByEmail(ctx context.Context, c *domain.AccessCode) (*domain.AccessCode, error)
	Delete(ctx context.Context, c *domain.AccessCode) error
}

type mailSender interface {
	Send(ctx context.Context, msg domain.Message) error
}

type service struct {
	repo         codeStore
	mailer       mailSender
	linkTemplate string
	bcryptCost   int
	logger       *slog.Logger
	now          func() time.Time
}

type ServiceDeps struct {
	Repo   codeStore
	Mailer mailSender
	// LinkTemplate builds the invitation link; every %s is replaced by the code.
	LinkTemplate string
	BcryptCost   int
	Logger       *slog.Logger
	Now          func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		repo:         deps.Repo,
		mailer:       deps.Mailer,
		linkTemplate: deps.LinkTemplate,
		bcryptCost:   deps.BcryptCost,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Issue stores a code for req.Email, replacing any previous one, and mails
// the invitation. The plaintext code is only ever returned here.
func (s *service) Issue(ctx context.Context, req domain.AccessCodeRequest) (*domain.IssuedAccessCode, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expires := now.Add(domain.DefaultCodeLifetime)
	if req.ExpiresAt != nil {
		expires = req.ExpiresAt.UTC()
	}
	if !expires.After(now) {
		return nil, &domain.ValidationError{Msg: "expire_date must be in the future"}
	}
	if expires.After(now.AddDate(0, 1, 0)) {
		return nil, &domain.ValidationError{Msg: "expire_date must be within one month"}
	}

	code := req.Code
	if code == "" {
		var err error
		if code, err = pkgtoken.NewAccessCode(); err != nil {
			return nil, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, &domain.ValidationError{Msg: "code must be at most 72 bytes"}
	}
	if err != nil {
		return nil, fmt.Errorf("hash access code: %w", err)
	}

	stored, err := s.repo.UpsertByEmail(ctx, &domain.AccessCode{
		Email:     req.Email,
		CodeHash:  string(hash),
		ExpiresAt: expires,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("access code upserted", "row_id", stored.RowID, "email", stored.Email, "expires_at", expires)

	if err := s.mailer.Send(ctx, s.invitation(req.Email, code)); err != nil {
		return nil, fmt.Errorf("send invitation to %s: %w", req.Email, err)
	}
	s.logger.Info("invitation sent", "email", req.Email)

	return &domain.IssuedAccessCode{Email: stored.Email, Code: code, ExpiresAt: expires}, nil
}

func (s *service) invitation(email, code string) domain.Message {
	link := html.EscapeString(strings.ReplaceAll(s.linkTemplate, "%s", url.QueryEscape(code)))
	return domain.Message{
		To:      email,
		Subject: InvitationSubject,
		HTML: fmt.Sprintf(`<p>You have been invited to use Appointment Watch. Please click the following link to access the service: <a href="%s">%s</a>. This is a non-profit service!</p>`,
			link, link),
	}
}

// Authorize accepts code when it matches the code bound to address or the
// administrative code. A matching code that has expired is deleted and refused.
func (s *service) Authorize(ctx context.Context, address, code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("missing access code: %w", domain.ErrUnauthorized)
	}
	candidates := []string{address}
	if !strings.EqualFold(address, domain.AdminAddress) {
		candidates = append(candidates, domain.AdminAddress)
	}

	for _, email := range candidates {
		c, err := s.repo.GetByEmail(ctx, email)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(code)) != nil {
			continue
		}
		if c.Expired(s.now()) {
			if err := s.repo.Delete(ctx, c); err != nil {
				s.logger.Error("could not delete expired access code", "row_id", c.RowID, "err", err)
			}
			return fmt.Errorf("access code expired: %w", domain.ErrUnauthorized)
		}
		return nil
	}
	s.logger.Warn("access code rejected", "address", address)
	return fmt.Errorf("invalid access code: %w", domain.ErrUnauthorized)
}
