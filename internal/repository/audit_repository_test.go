package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"school-portal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)

	changes := `{"username":"admin1"}`
	entry := &models.AuditLog{
		UserID:    "",
		UserType:  "",
		Action:    models.AuditLoginFailed,
		Entity:    "auth",
		Changes:   &changes,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("", "", "LOGIN_FAILED", "auth", nil, changes, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListBuildsFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE user_id = $1 AND action = $2 AND created_at >= $3 ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5")).
		WithArgs("u1", "LOGIN", from, 500, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_type", "action", "entity", "entity_id", "changes", "ip_address", "user_agent", "created_at"}).
			AddRow(7, "u1", "TEACHER", "LOGIN", "auth", nil, nil, "10.0.0.1", "curl", from))

	entries, err := repo.List(context.Background(), models.AuditFilter{
		UserID: "u1",
		Action: models.AuditLogin,
		From:   &from,
		Limit:  10_000,
		Offset: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ID)
	require.NotNil(t, entries[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *entries[0].IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_ListDefaultsPageSize(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + auditColumns + " FROM audit_logs ORDER BY")).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
