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
	"sfaptracker/mail"
)

// ForgotPassword mails a single-use reset link when the email belongs to a
// user. Callers get the same answer whether or not it does; delivery
// failures are only logged.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("EmailRequired")
	}

	user, err := s.GetUser(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		s.log.Debug("password reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}

	token, err := crypto.NewToken()
	if err != nil {
		return apperr.Internal(err)
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (tokenHash, email, expiresAt, used, createdAt) VALUES (?, ?, ?, 0, ?)",
		crypto.HashToken(token), email, now.Add(s.opts.ResetTTL), now)
	if err != nil {
		return apperr.Internal(err)
	}

	link := strings.TrimRight(s.opts.BaseURL, "/") + "/?token=" + token
	msg, err := mail.PasswordReset(s.opts.AppName, email, user.FirstName, link, s.opts.ResetTTL)
	if err != nil {
		s.log.Error("render reset email", zap.Error(err))
		return nil
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("send reset email", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// ResetPasswordWithToken sets a new password if token is known, unused and
// not expired, and burns the token in the same transaction.
func (s *Service) ResetPasswordWithToken(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return apperr.Validation("TokenAndPasswordRequired")
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return apperr.Internal(err)
	}

	tokenHash := crypto.HashToken(token)
	now := s.now()
	var email string
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			expiresAt sql.NullTime
			used      bool
		)
		err := tx.QueryRowContext(ctx,
			"SELECT email, expiresAt, used FROM password_reset_tokens WHERE tokenHash = ?", tokenHash).
			Scan(&email, &expiresAt, &used)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.BadRequest("InvalidResetToken")
		}
		if err != nil {
			return apperr.Internal(err)
		}
		if used || !expiresAt.Valid || !now.Before(expiresAt.Time) {
			return apperr.BadRequest("InvalidResetToken")
		}

		res, err := tx.ExecContext(ctx, "UPDATE users SET password = ?, updatedAt = ? WHERE email = ?", hash, now, email)
		if err != nil {
			return apperr.Internal(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return apperr.Internal(err)
		} else if n == 0 {
			return apperr.BadRequest("InvalidResetToken")
		}

		if _, err := tx.ExecContext(ctx, "UPDATE password_reset_tokens SET used = 1 WHERE tokenHash = ?", tokenHash); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("password reset with token", zap.String("email", email))
	return nil
}
