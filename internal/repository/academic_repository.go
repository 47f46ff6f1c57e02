package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"school-portal/internal/models"

	"github.com/jmoiron/sqlx"
)

var ErrRecordNotFound = errors.New("record not found")

// AcademicRepository serves the rows authorization narrows: assignments, results and students.
type AcademicRepository interface {
	ListAssignments(ctx context.Context, scope models.RowScope) ([]*models.Assignment, error)
	ListResults(ctx context.Context, scope models.RowScope) ([]*models.Result, error)
	GetResult(ctx context.Context, id int) (*models.Result, error)
	UpdateResultScore(ctx context.Context, id, score int) error
	DeleteResult(ctx context.Context, id int) error
	GetStudent(ctx context.Context, id string) (*models.StudentRecord, error)
}

type academicRepository struct {
	db *sqlx.DB
}

func NewAcademicRepository(db *sqlx.DB) AcademicRepository {
	return &academicRepository{db: db}
}

const assignmentSelect = `
	SELECT a.id, a.title, a.start_date, a.due_date, a.lesson_id, l.teacher_id, l.class_id
	FROM assignments a
	JOIN lessons l ON l.id = a.lesson_id`

// scopeClause returns the WHERE clause that restricts a listing to the caller's rows.
func scopeClause(scope models.RowScope, clauses map[models.PrincipalKind]string) (string, []any, error) {
	if scope.Kind == models.KindAdmin {
		return "", nil, nil
	}
	clause, ok := clauses[scope.Kind]
	if !ok {
		return "", nil, fmt.Errorf("no row scope for %q", scope.Kind)
	}
	return " WHERE " + clause, []any{scope.UserID}, nil
}

var assignmentScopes = map[models.PrincipalKind]string{
	models.KindTeacher: "l.teacher_id = $1",
	models.KindStudent: "l.class_id = (SELECT class_id FROM students WHERE id = $1)",
	models.KindParent:  "l.class_id IN (SELECT class_id FROM students WHERE parent_id = $1)",
}

func (r *academicRepository) ListAssignments(ctx context.Context, scope models.RowScope) ([]*models.Assignment, error) {
	where, args, err := scopeClause(scope, assignmentScopes)
	if err != nil {
		return nil, err
	}

	var assignments []*models.Assignment
	query := assignmentSelect + where + " ORDER BY a.due_date DESC, a.id"
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

const resultSelect = `
	SELECT r.id, r.score, r.student_id, r.exam_id, r.assignment_id, l.teacher_id, s.parent_id
	FROM results r
	LEFT JOIN exams e ON e.id = r.exam_id
	LEFT JOIN assignments a ON a.id = r.assignment_id
	JOIN lessons l ON l.id = COALESCE(e.lesson_id, a.lesson_id)
	JOIN students s ON s.id = r.student_id`

var resultScopes = map[models.PrincipalKind]string{
	models.KindTeacher: "l.teacher_id = $1",
	models.KindStudent: "r.student_id = $1",
	models.KindParent:  "s.parent_id = $1",
}

func (r *academicRepository) ListResults(ctx context.Context, scope models.RowScope) ([]*models.Result, error) {
	where, args, err := scopeClause(scope, resultScopes)
	if err != nil {
		return nil, err
	}

	var results []*models.Result
	query := resultSelect + where + " ORDER BY r.id"
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}

func (r *academicRepository) GetResult(ctx context.Context, id int) (*models.Result, error) {
	var result models.Result
	if err := r.db.GetContext(ctx, &result, resultSelect+" WHERE r.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &result, nil
}

func (r *academicRepository) UpdateResultScore(ctx context.Context, id, score int) error {
	res, err := r.db.ExecContext(ctx, "UPDATE results SET score = $1 WHERE id = $2", score, id)
	if err != nil {
		return fmt.Errorf("failed to update result: %w", err)
	}
	return requireAffected(res)
}

func (r *academicRepository) DeleteResult(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return requireAffected(res)
}

func (r *academicRepository) GetStudent(ctx context.Context, id string) (*models.StudentRecord, error) {
	var student models.StudentRecord
	query := "SELECT id, username, name, surname, parent_id, class_id FROM students WHERE id = $1"
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

func requireAffected(res sql.Result) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
