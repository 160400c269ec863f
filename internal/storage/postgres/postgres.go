package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strife_service/internal/config"
	"strife_service/internal/models"
	"strife_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation. pgx wraps its errors, so the check must unwrap.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

const userColumns = `
	id, email, display_name, username,
	COALESCE(password_hash, ''), date_of_birth, avatar_url,
	COALESCE(twofa_secret, ''), is_twofa_enabled,
	COALESCE(google_id, ''), COALESCE(google_access_token, '')
`

func (r *PostgresRepo) SaveUser(ctx context.Context, u models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (
			email, display_name, username, password_hash,
			date_of_birth, avatar_url, google_id, google_access_token
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query,
		u.Email,
		u.DisplayName,
		u.Username,
		string(u.PassHash),
		u.DateOfBirth,
		u.AvatarURL,
		u.GoogleID,
		u.GoogleAccessToken,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrUserExists
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) UserByUsername(ctx context.Context, username string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1;`

	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1;`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByGoogleID(ctx context.Context, googleID string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1;`

	return r.scanUser(r.pool.QueryRow(ctx, query, googleID))
}

func (r *PostgresRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *PostgresRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PostgresRepo) UpdateAvatarURL(ctx context.Context, userID int64, avatarURL string) error {
	query := `UPDATE users SET avatar_url = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, avatarURL, userID)

	return err
}

func (r *PostgresRepo) UpdateDisplayName(ctx context.Context, userID int64, displayName string) error {
	query := `UPDATE users SET display_name = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, displayName, userID)

	return err
}

func (r *PostgresRepo) UpdateEmail(ctx context.Context, userID int64, email string) error {
	const op = "storage.postgres.UpdateEmail"

	query := `UPDATE users SET email = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, email, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) UpdateDateOfBirth(ctx context.Context, userID int64, dateOfBirth time.Time) error {
	query := `UPDATE users SET date_of_birth = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, dateOfBirth, userID)

	return err
}

func (r *PostgresRepo) UpdateUsername(ctx context.Context, userID int64, username string) error {
	const op = "storage.postgres.UpdateUsername"

	query := `UPDATE users SET username = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, username, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, string(passHash), userID)

	return err
}

func (r *PostgresRepo) SetTwoFA(ctx context.Context, userID int64, secret string, enabled bool) error {
	query := `UPDATE users SET twofa_secret = NULLIF($1, ''), is_twofa_enabled = $2 WHERE id = $3`

	_, err := r.pool.Exec(ctx, query, secret, enabled, userID)

	return err
}

func (r *PostgresRepo) UpdateGoogleAccessToken(ctx context.Context, userID int64, accessToken string) error {
	query := `UPDATE users SET google_access_token = $1 WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, accessToken, userID)

	return err
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var (
		u        models.User
		passHash string
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.Username,
		&passHash,
		&u.DateOfBirth,
		&u.AvatarURL,
		&u.TwoFASecret,
		&u.IsTwoFAEnabled,
		&u.GoogleID,
		&u.GoogleAccessToken,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	if passHash != "" {
		u.PassHash = []byte(passHash)
	}

	return u, nil
}

func (r *PostgresRepo) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists bool

	err := r.pool.QueryRow(ctx, query, arg).Scan(&exists)

	return exists, err
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
