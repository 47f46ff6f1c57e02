// Package testutil provides in-memory stand-ins for the Postgres-backed
// repositories so services and handlers can be tested without a database.
package testutil

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/event"
	"school-portal/internal/models"
	"school-portal/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

func MustHash(t testing.TB, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

// PrincipalStore implements repository.PrincipalRepository in memory.
type PrincipalStore struct {
	mu   sync.Mutex
	rows map[models.PrincipalKind][]models.Principal
}

func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{rows: map[models.PrincipalKind][]models.Principal{}}
}

func (s *PrincipalStore) Add(p models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.Kind()] = append(s.rows[p.Kind()], p)
}

func (s *PrincipalStore) find(kind models.PrincipalKind, match func(models.Principal) bool) (models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows[kind] {
		if match(p) {
			return p, nil
		}
	}
	return nil, repository.ErrPrincipalNotFound
}

func (s *PrincipalStore) GetByUsername(_ context.Context, kind models.PrincipalKind, username string) (models.Principal, error) {
	return s.find(kind, func(p models.Principal) bool { return p.GetUsername() == username })
}

func (s *PrincipalStore) GetByID(_ context.Context, kind models.PrincipalKind, id string) (models.Principal, error) {
	return s.find(kind, func(p models.Principal) bool { return p.GetID() == id })
}

func (s *PrincipalStore) GetByEmail(_ context.Context, kind models.PrincipalKind, email string) (models.Principal, error) {
	return s.find(kind, func(p models.Principal) bool {
		e := emailOf(p)
		return e != nil && strings.EqualFold(*e, email)
	})
}

func (s *PrincipalStore) Create(_ context.Context, p models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows[p.Kind()] {
		if existing.GetUsername() == p.GetUsername() {
			return apperror.Conflict("USERNAME_TAKEN", "username already exists")
		}
	}
	s.rows[p.Kind()] = append(s.rows[p.Kind()], p)
	return nil
}

func (s *PrincipalStore) UpdatePasswordHash(_ context.Context, kind models.PrincipalKind, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows[kind] {
		if p.GetID() != id {
			continue
		}
		switch v := p.(type) {
		case *models.Admin:
			v.PasswordHash = passwordHash
		case *models.Teacher:
			v.PasswordHash = passwordHash
		case *models.Student:
			v.PasswordHash = passwordHash
		case *models.Parent:
			v.PasswordHash = passwordHash
		}
		return nil
	}
	return repository.ErrPrincipalNotFound
}

func (s *PrincipalStore) Count(_ context.Context, kind models.PrincipalKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[kind]), nil
}

func emailOf(p models.Principal) *string {
	switch v := p.(type) {
	case *models.Teacher:
		return v.Email
	case *models.Student:
		return v.Email
	case *models.Parent:
		return v.Email
	}
	return nil
}

// AuditStore implements repository.AuditRepository in memory.
type AuditStore struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	Err     error
}

func (s *AuditStore) Insert(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	entry.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditStore) List(_ context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range slices.Backward(s.entries) {
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *AuditStore) ListBetween(_ context.Context, from, to time.Time) ([]*models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuditLog
	for _, e := range s.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *AuditStore) Entries() []*models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

func (s *AuditStore) Actions() []models.AuditAction {
	var actions []models.AuditAction
	for _, e := range s.Entries() {
		actions = append(actions, e.Action)
	}
	return actions
}

// AcademicStore implements repository.AcademicRepository in memory.
type AcademicStore struct {
	mu          sync.Mutex
	Assignments []*models.Assignment
	Results     []*models.Result
	Students    []*models.StudentRecord
}

func (s *AcademicStore) ListAssignments(_ context.Context, scope models.RowScope) ([]*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Assignment
	for _, a := range s.Assignments {
		if s.assignmentVisible(a, scope) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AcademicStore) assignmentVisible(a *models.Assignment, scope models.RowScope) bool {
	switch scope.Kind {
	case models.KindAdmin:
		return true
	case models.KindTeacher:
		return a.TeacherID == scope.UserID
	}
	for _, st := range s.Students {
		if st.ClassID == nil || *st.ClassID != a.ClassID {
			continue
		}
		if (scope.Kind == models.KindStudent && st.ID == scope.UserID) ||
			(scope.Kind == models.KindParent && st.ParentID == scope.UserID) {
			return true
		}
	}
	return false
}

func (s *AcademicStore) ListResults(_ context.Context, scope models.RowScope) ([]*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Result
	for _, r := range s.Results {
		if r.OwnedBy(scope) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *AcademicStore) GetResult(_ context.Context, id int) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Results {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (s *AcademicStore) UpdateResultScore(_ context.Context, id, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Results {
		if r.ID == id {
			r.Score = score
			return nil
		}
	}
	return repository.ErrRecordNotFound
}

func (s *AcademicStore) DeleteResult(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.Results {
		if r.ID == id {
			s.Results = slices.Delete(s.Results, i, i+1)
			return nil
		}
	}
	return repository.ErrRecordNotFound
}

func (s *AcademicStore) GetStudent(_ context.Context, id string) (*models.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.Students {
		if st.ID == id {
			return st, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

// Notification is one message captured by Notifier.
type Notification struct {
	Type        event.NotificationType
	RecipientID string
	Payload     map[string]any
}

// Notifier records published notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *Notifier) Publish(_ context.Context, msgType event.NotificationType, recipientID string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Type: msgType, RecipientID: recipientID, Payload: payload})
	return nil
}

func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

// ArchiveSink captures uploaded archive objects.
type ArchiveSink struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func (a *ArchiveSink) UploadObject(_ context.Context, objectName, _ string, reader io.Reader, _ int64) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Objects == nil {
		a.Objects = map[string][]byte{}
	}
	a.Objects[objectName] = buf.Bytes()
	return objectName, nil
}

func (a *ArchiveSink) GetSignedURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://archive.test/" + objectName, nil
}
