package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrPrincipalNotFound = errors.New("principal not found")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PrincipalRepository reads and writes the four principal tables through one surface.
type PrincipalRepository interface {
	GetByUsername(ctx context.Context, kind models.PrincipalKind, username string) (models.Principal, error)
	GetByID(ctx context.Context, kind models.PrincipalKind, id string) (models.Principal, error)
	GetByEmail(ctx context.Context, kind models.PrincipalKind, email string) (models.Principal, error)
	Create(ctx context.Context, principal models.Principal) error
	UpdatePasswordHash(ctx context.Context, kind models.PrincipalKind, id, passwordHash string) error
	Count(ctx context.Context, kind models.PrincipalKind) (int, error)
}

type principalTable struct {
	name    string
	columns string
	insert  string
}

var principalTables = map[models.PrincipalKind]principalTable{
	models.KindAdmin: {
		name:    "admins",
		columns: "id, username, password_hash, created_at",
		insert:  "INSERT INTO admins (id, username, password_hash, created_at) VALUES (:id, :username, :password_hash, :created_at)",
	},
	models.KindTeacher: {
		name:    "teachers",
		columns: "id, username, password_hash, created_at, name, surname, email, phone",
		insert: `INSERT INTO teachers (id, username, password_hash, created_at, name, surname, email, phone)
			VALUES (:id, :username, :password_hash, :created_at, :name, :surname, :email, :phone)`,
	},
	models.KindStudent: {
		name:    "students",
		columns: "id, username, password_hash, created_at, name, surname, email, phone, parent_id, class_id",
		insert: `INSERT INTO students (id, username, password_hash, created_at, name, surname, email, phone, parent_id, class_id)
			VALUES (:id, :username, :password_hash, :created_at, :name, :surname, :email, :phone, :parent_id, :class_id)`,
	},
	models.KindParent: {
		name:    "parents",
		columns: "id, username, password_hash, created_at, name, surname, email, phone",
		insert: `INSERT INTO parents (id, username, password_hash, created_at, name, surname, email, phone)
			VALUES (:id, :username, :password_hash, :created_at, :name, :surname, :email, :phone)`,
	},
}

type principalRepository struct {
	db *sqlx.DB
}

func NewPrincipalRepository(db *sqlx.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

func newPrincipal(kind models.PrincipalKind) models.Principal {
	switch kind {
	case models.KindAdmin:
		return &models.Admin{}
	case models.KindTeacher:
		return &models.Teacher{}
	case models.KindStudent:
		return &models.Student{}
	case models.KindParent:
		return &models.Parent{}
	}
	return nil
}

func (r *principalRepository) table(kind models.PrincipalKind) (principalTable, error) {
	t, ok := principalTables[kind]
	if !ok {
		return principalTable{}, fmt.Errorf("unknown principal kind %q", kind)
	}
	return t, nil
}

func (r *principalRepository) getBy(ctx context.Context, kind models.PrincipalKind, column, value string) (models.Principal, error) {
	t, err := r.table(kind)
	if err != nil {
		return nil, err
	}

	dest := newPrincipal(kind)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", t.columns, t.name, column)
	if err := r.db.GetContext(ctx, dest, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get %s by %s: %w", t.name, column, err)
	}
	return dest, nil
}

func (r *principalRepository) GetByUsername(ctx context.Context, kind models.PrincipalKind, username string) (models.Principal, error) {
	return r.getBy(ctx, kind, "username", username)
}

func (r *principalRepository) GetByID(ctx context.Context, kind models.PrincipalKind, id string) (models.Principal, error) {
	return r.getBy(ctx, kind, "id", id)
}

func (r *principalRepository) GetByEmail(ctx context.Context, kind models.PrincipalKind, email string) (models.Principal, error) {
	if kind == models.KindAdmin {
		return nil, ErrPrincipalNotFound
	}
	t, err := r.table(kind)
	if err != nil {
		return nil, err
	}

	dest := newPrincipal(kind)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE lower(email) = lower($1)", t.columns, t.name)
	if err := r.db.GetContext(ctx, dest, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get %s by email: %w", t.name, err)
	}
	return dest, nil
}

func (r *principalRepository) Create(ctx context.Context, principal models.Principal) error {
	t, err := r.table(principal.Kind())
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, t.insert, principal)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return uniqueViolation(pqErr)
			case pqForeignKeyViolation:
				return apperror.Validation("INVALID_REFERENCE", "referenced parent or class does not exist")
			}
		}
		return fmt.Errorf("failed to create %s: %w", t.name, err)
	}
	return nil
}

// uniqueViolation names the duplicated column from the violated constraint or index.
func uniqueViolation(pqErr *pq.Error) *apperror.Error {
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return apperror.Conflict("EMAIL_TAKEN", "email already exists")
	case strings.Contains(pqErr.Constraint, "phone"):
		return apperror.Conflict("PHONE_TAKEN", "phone already exists")
	default:
		return apperror.Conflict("USERNAME_TAKEN", "username already exists")
	}
}

func (r *principalRepository) UpdatePasswordHash(ctx context.Context, kind models.PrincipalKind, id, passwordHash string) error {
	t, err := r.table(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET password_hash = $1 WHERE id = $2", t.name)
	result, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func (r *principalRepository) Count(ctx context.Context, kind models.PrincipalKind) (int, error) {
	t, err := r.table(kind)
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.name)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return count, nil
}

// NewIdentity fills the shared identity columns for a principal about to be created.
func NewIdentity(id, username, passwordHash string) models.Identity {
	return models.Identity{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}
