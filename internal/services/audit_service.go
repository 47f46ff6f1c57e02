package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"school-portal/internal/apperror"
	"school-portal/internal/logging"
	"school-portal/internal/models"
	"school-portal/internal/repository"
)

const (
	auditWriteTimeout     = 3 * time.Second
	archiveDownloadExpiry = time.Hour
)

// AuditEvent is one security-relevant action to append to the audit log.
type AuditEvent struct {
	UserID    string
	UserType  models.PrincipalKind
	Action    models.AuditAction
	Entity    string
	EntityID  string
	Changes   any
	IPAddress string
	UserAgent string
}

// ArchiveStore receives exported audit archives.
type ArchiveStore interface {
	UploadObject(ctx context.Context, objectName, contentType string, reader io.Reader, size int64) (string, error)
	GetSignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type ArchiveResult struct {
	ObjectKey   string    `json:"objectKey"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Entries     int       `json:"entries"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
}

type AuditService struct {
	repo    repository.AuditRepository
	archive ArchiveStore
	now     func() time.Time
}

// NewAuditService wires the writer; archive may be nil when object storage is off.
func NewAuditService(repo repository.AuditRepository, archive ArchiveStore) *AuditService {
	return &AuditService{repo: repo, archive: archive, now: time.Now}
}

// Record appends an entry. It never fails the caller: write errors are logged.
// The write outlives the request context so a disconnecting client cannot drop it.
func (s *AuditService) Record(ctx context.Context, ev AuditEvent) {
	entry := &models.AuditLog{
		UserID:    ev.UserID,
		UserType:  string(ev.UserType),
		Action:    ev.Action,
		Entity:    ev.Entity,
		EntityID:  optional(ev.EntityID),
		IPAddress: optional(ev.IPAddress),
		UserAgent: optional(ev.UserAgent),
		CreatedAt: s.now().UTC(),
	}
	if ev.Changes != nil {
		raw, err := json.Marshal(ev.Changes)
		if err != nil {
			logging.Error().Err(err).Str("action", string(ev.Action)).Msg("audit changes not serializable")
		} else {
			changes := string(raw)
			entry.Changes = &changes
		}
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.repo.Insert(writeCtx, entry); err != nil {
		logging.Error().Err(err).
			Str("action", string(ev.Action)).
			Str("user_id", ev.UserID).
			Str("entity", ev.Entity).
			Msg("failed to write audit log")
	}
}

func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal("failed to list audit logs", err)
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}
	return entries, nil
}

// Archive exports entries in [from, to) as JSON Lines to object storage.
func (s *AuditService) Archive(ctx context.Context, from, to time.Time) (*ArchiveResult, error) {
	if s.archive == nil {
		return nil, apperror.Validation("ARCHIVE_DISABLED", "audit archive storage is not configured")
	}
	if !from.Before(to) {
		return nil, apperror.Validation("INVALID_RANGE", "from must be before to")
	}

	entries, err := s.repo.ListBetween(ctx, from, to)
	if err != nil {
		return nil, apperror.Internal("failed to read audit logs", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, apperror.Internal("failed to encode audit log", err)
		}
	}

	objectName := fmt.Sprintf("audit/%s_%s_%d.jsonl",
		from.UTC().Format("20060102T150405Z"), to.UTC().Format("20060102T150405Z"), s.now().Unix())
	key, err := s.archive.UploadObject(ctx, objectName, "application/x-ndjson", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, apperror.Internal("failed to upload audit archive", err)
	}

	res := &ArchiveResult{ObjectKey: key, Entries: len(entries), From: from, To: to}
	if url, err := s.archive.GetSignedURL(ctx, key, archiveDownloadExpiry); err != nil {
		logging.Warn().Err(err).Str("object", key).Msg("failed to sign archive download url")
	} else {
		res.DownloadURL = url
	}
	return res, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
