package models

import "time"

// RowScope identifies who a query is narrowed for.
type RowScope struct {
	UserID string
	Kind   PrincipalKind
}

type Assignment struct {
	ID        int       `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	StartDate time.Time `json:"startDate" db:"start_date"`
	DueDate   time.Time `json:"dueDate" db:"due_date"`
	LessonID  int       `json:"lessonId" db:"lesson_id"`
	TeacherID string    `json:"teacherId" db:"teacher_id"`
	ClassID   int       `json:"classId" db:"class_id"`
}

type Result struct {
	ID           int    `json:"id" db:"id"`
	Score        int    `json:"score" db:"score"`
	StudentID    string `json:"studentId" db:"student_id"`
	ExamID       *int   `json:"examId" db:"exam_id"`
	AssignmentID *int   `json:"assignmentId" db:"assignment_id"`
	TeacherID    string `json:"teacherId" db:"teacher_id"`
	ParentID     string `json:"parentId" db:"parent_id"`
}

// OwnedBy reports whether the row falls inside the caller's scope:
// teachers own rows of their lessons, students their own results and
// parents the results of their children.
func (r *Result) OwnedBy(scope RowScope) bool {
	switch scope.Kind {
	case KindAdmin:
		return true
	case KindTeacher:
		return r.TeacherID == scope.UserID
	case KindStudent:
		return r.StudentID == scope.UserID
	case KindParent:
		return r.ParentID == scope.UserID
	}
	return false
}

type StudentRecord struct {
	ID       string `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Name     string `json:"name" db:"name"`
	Surname  string `json:"surname" db:"surname"`
	ParentID string `json:"parentId" db:"parent_id"`
	ClassID  *int   `json:"classId" db:"class_id"`
}

// VisibleTo applies the student-record scope. Teachers read any student.
func (s *StudentRecord) VisibleTo(scope RowScope) bool {
	switch scope.Kind {
	case KindAdmin, KindTeacher:
		return true
	case KindStudent:
		return s.ID == scope.UserID
	case KindParent:
		return s.ParentID == scope.UserID
	}
	return false
}
