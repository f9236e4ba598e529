// Package directory manages user accounts and administrator membership:
// registration, login, the admin user CRUD and self-service password reset.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/crypto"
	"sfaptracker/db"
	"sfaptracker/mail"
	"sfaptracker/models"
)

const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type Options struct {
	AppName  string
	BaseURL  string
	ResetTTL time.Duration
}

type Service struct {
	db     *sql.DB
	log    *zap.Logger
	mailer mail.Mailer
	opts   Options
	Now    func() time.Time
}

func NewService(conn *sql.DB, log *zap.Logger, mailer mail.Mailer, opts Options) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{db: conn, log: log, mailer: mailer, opts: opts, Now: time.Now}
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Cohort    string `json:"cohort"`
	Company   string `json:"company"`
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Validation("PasswordTooShort", MinPasswordLength)
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Register creates an apprentice account. Every field is required.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	fields := []struct{ name, value string }{
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"password", in.Password},
		{"cohort", in.Cohort},
		{"company", in.Company},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation("MissingRequiredField", f.name)
		}
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		return apperr.Validation("InvalidEmail")
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return apperr.Internal(err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (email, password, firstName, lastName, cohort, company, role, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email, hash, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
		strings.TrimSpace(in.Cohort), strings.TrimSpace(in.Company), models.RoleApprentice, now, now)
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("EmailAlreadyRegistered")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Info("user registered", zap.String("email", email))
	return nil
}

// Authenticate checks a login. Unknown emails still pay for a bcrypt
// comparison.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, email)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	hash := crypto.DummyHash()
	if user != nil {
		hash = user.PasswordHash
	}
	if !crypto.CheckPasswordHash(password, hash) || user == nil {
		return nil, apperr.Auth("InvalidCredentials")
	}
	return user, nil
}

const userColumns = "email, firstName, lastName, company, cohort, role, password, createdAt, updatedAt"

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(sc scanner, extra ...any) (*models.User, error) {
	var (
		u                    models.User
		createdAt, updatedAt sql.NullTime
	)
	dest := append([]any{&u.Email, &u.FirstName, &u.LastName, &u.Company, &u.Cohort, &u.Role, &u.PasswordHash,
		&createdAt, &updatedAt}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

func (s *Service) GetUser(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", NormalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("UserNotFound")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// IsAdmin reports whether email is in the admins table. Built-in admins are
// seeded there at startup.
func (s *Service) IsAdmin(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM admins WHERE email = ?", NormalizeEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Internal(err)
	}
	return true, nil
}
