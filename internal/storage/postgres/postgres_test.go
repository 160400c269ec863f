package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	duplicate := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "users_email_key",
	}

	t.Run("duplicate key", func(t *testing.T) {
		assert.True(t, isUniqueViolation(duplicate))
	})

	t.Run("wrapped duplicate key", func(t *testing.T) {
		// pgx returns its errors wrapped, so a bare type assertion
		// would miss them.
		err := fmt.Errorf("insert user: %w", duplicate)
		assert.True(t, isUniqueViolation(err))
	})

	t.Run("other pg error", func(t *testing.T) {
		assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	})

	t.Run("non pg error", func(t *testing.T) {
		assert.False(t, isUniqueViolation(errors.New("connection reset")))
	})

	t.Run("nil", func(t *testing.T) {
		assert.False(t, isUniqueViolation(nil))
	})
}
