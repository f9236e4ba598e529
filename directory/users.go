package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"sfaptracker/apperr"
	"sfaptracker/crypto"
	"sfaptracker/db"
	"sfaptracker/models"
)

type CreateUserInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Cohort    string `json:"cohort"`
	Role      string `json:"role"`
}

// UpdateUserInput holds the fields to change. Nil fields keep their value.
type UpdateUserInput struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Company   *string `json:"company"`
	Cohort    *string `json:"cohort"`
	Role      *string `json:"role"`
}

// ListUsers returns every user with progress counters, ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email, u.firstName, u.lastName, u.company, u.cohort, u.role, u.password, u.createdAt, u.updatedAt,
		       EXISTS (SELECT 1 FROM admins a WHERE a.email = u.email) AS isAdmin,
		       COUNT(p.id) AS totalProgress,
		       COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) AS completedProgress,
		       ROUND(COUNT(CASE WHEN p.rating IS NOT NULL THEN 1 END) * 100.0 /
		             (SELECT COUNT(*) FROM competencies), 2) AS progressPercentage
		FROM users u
		LEFT JOIN progress p ON u.email = p.apprenticeEmail
		GROUP BY u.email
		ORDER BY u.lastName, u.firstName`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	users := []models.UserSummary{}
	for rows.Next() {
		var (
			sum        models.UserSummary
			percentage sql.NullFloat64
		)
		u, err := scanUser(rows, &sum.IsAdmin, &sum.TotalProgress, &sum.CompletedProgress, &percentage)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		sum.User = *u
		sum.ProgressPercentage = percentage.Float64
		users = append(users, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return users, nil
}

// CreateUser adds an account on behalf of an administrator and returns the
// generated temporary password. It is not stored in clear anywhere.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (string, error) {
	email := NormalizeEmail(in.Email)
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" || email == "" {
		return "", apperr.Validation("NameAndEmailRequired")
	}
	if !validEmail(email) {
		return "", apperr.Validation("InvalidEmail")
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = models.RoleApprentice
	}

	password, err := crypto.TempPassword()
	if err != nil {
		return "", apperr.Internal(err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return "", apperr.Internal(err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (email, password, firstName, lastName, cohort, company, role, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		email, hash, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
		strings.TrimSpace(in.Cohort), strings.TrimSpace(in.Company), role, now, now)
	if db.IsUniqueViolation(err) {
		return "", apperr.Conflict("UserAlreadyExists")
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	s.log.Info("user created", zap.String("email", email))
	return password, nil
}

// UpdateUser changes a user's profile. When the email changes, progress
// rows, admin membership and pending reset tokens move to the new address
// in the same transaction. Built-in admin entries stay on the configured
// address.
func (s *Service) UpdateUser(ctx context.Context, email string, in UpdateUserInput) (*models.User, error) {
	email = NormalizeEmail(email)

	var updated *models.User
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
		u, err := scanUser(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("UserNotFound")
		}
		if err != nil {
			return apperr.Internal(err)
		}

		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		apply(&u.FirstName, in.FirstName)
		apply(&u.LastName, in.LastName)
		apply(&u.Company, in.Company)
		apply(&u.Cohort, in.Cohort)
		apply(&u.Role, in.Role)
		if in.Email != nil {
			u.Email = NormalizeEmail(*in.Email)
		}

		if u.FirstName == "" || u.LastName == "" || u.Email == "" {
			return apperr.Validation("NameAndEmailRequired")
		}
		if !validEmail(u.Email) {
			return apperr.Validation("InvalidEmail")
		}
		if u.Role == "" {
			u.Role = models.RoleApprentice
		}
		u.UpdatedAt = s.now()

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET email = ?, firstName = ?, lastName = ?, company = ?, cohort = ?, role = ?, updatedAt = ?
			 WHERE email = ?`,
			u.Email, u.FirstName, u.LastName, u.Company, u.Cohort, u.Role, u.UpdatedAt, email)
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("UserAlreadyExists")
		}
		if err != nil {
			return apperr.Internal(err)
		}

		if u.Email != email {
			err := rekey(ctx, tx, email, u.Email)
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("UserAlreadyExists")
			}
			if err != nil {
				return apperr.Internal(err)
			}
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user updated", zap.String("email", email), zap.String("newEmail", updated.Email))
	return updated, nil
}

func rekey(ctx context.Context, tx *sql.Tx, from, to string) error {
	stmts := []string{
		`UPDATE progress SET apprenticeEmail = ?1, id = ?1 || '_' || competencyId WHERE apprenticeEmail = ?2`,
		`UPDATE admins SET email = ?1 WHERE email = ?2 AND builtin = 0`,
		`UPDATE password_reset_tokens SET email = ?1 WHERE email = ?2`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, to, from); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUser removes a user and everything keyed by their email in one
// transaction. Built-in admin entries survive since they come from
// configuration.
func (s *Service) DeleteUser(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmts := []string{
			"DELETE FROM progress WHERE apprenticeEmail = ?",
			"DELETE FROM password_reset_tokens WHERE email = ?",
			"DELETE FROM admins WHERE email = ? AND builtin = 0",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, email); err != nil {
				return apperr.Internal(err)
			}
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE email = ?", email)
		if err != nil {
			return apperr.Internal(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return apperr.Internal(err)
		} else if n == 0 {
			return apperr.NotFound("UserNotFound")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted", zap.String("email", email))
	return nil
}

// ResetPassword replaces a user's password with a new temporary one and
// returns it.
func (s *Service) ResetPassword(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	password, err := crypto.TempPassword()
	if err != nil {
		return "", apperr.Internal(err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return "", apperr.Internal(err)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE users SET password = ?, updatedAt = ? WHERE email = ?", hash, s.now(), email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", apperr.Internal(err)
	} else if n == 0 {
		return "", apperr.NotFound("UserNotFound")
	}
	s.log.Info("password reset by admin", zap.String("email", email))
	return password, nil
}

// ListAdmins returns the admin table joined with user names, newest first.
// Built-in admins may not have an account yet.
func (s *Service) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.email, a.builtin, a.createdAt, COALESCE(u.firstName, ''), COALESCE(u.lastName, '')
		FROM admins a
		LEFT JOIN users u ON u.email = a.email
		ORDER BY a.createdAt DESC, a.email`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	admins := []models.Admin{}
	for rows.Next() {
		var (
			a         models.Admin
			createdAt sql.NullTime
		)
		if err := rows.Scan(&a.Email, &a.Builtin, &createdAt, &a.FirstName, &a.LastName); err != nil {
			return nil, apperr.Internal(err)
		}
		a.CreatedAt = createdAt.Time
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err)
	}
	return admins, nil
}

func (s *Service) AddAdmin(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("EmailRequired")
	}
	if _, err := s.GetUser(ctx, email); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, "INSERT INTO admins (email, builtin, createdAt) VALUES (?, 0, ?)", email, s.now())
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("AlreadyAdmin")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Info("admin added", zap.String("email", email))
	return nil
}

func (s *Service) RemoveAdmin(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	var builtin bool
	err := s.db.QueryRowContext(ctx, "SELECT builtin FROM admins WHERE email = ?", email).Scan(&builtin)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("AdminNotFound")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	if builtin {
		return apperr.Validation("BuiltinAdminProtected")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM admins WHERE email = ?", email); err != nil {
		return apperr.Internal(err)
	}
	s.log.Info("admin removed", zap.String("email", email))
	return nil
}

// EnsureAdmin creates or updates an account with the given password and
// grants it admin rights. Used by the create-admin command.
func (s *Service) EnsureAdmin(ctx context.Context, in CreateUserInput, password string) error {
	email := NormalizeEmail(in.Email)
	if email == "" || !validEmail(email) {
		return apperr.Validation("InvalidEmail")
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return apperr.Internal(err)
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = "Admin"
	}

	now := s.now()
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (email, password, firstName, lastName, cohort, company, role, createdAt, updatedAt)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(email) DO UPDATE SET password = excluded.password, updatedAt = excluded.updatedAt`,
			email, hash, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
			strings.TrimSpace(in.Cohort), strings.TrimSpace(in.Company), role, now, now)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO admins (email, builtin, createdAt) VALUES (?, 0, ?) ON CONFLICT(email) DO NOTHING",
			email, now)
		return err
	})
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Info("admin account ensured", zap.String("email", email))
	return nil
}
