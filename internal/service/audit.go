package service

import (
	"context"
	"time"

	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/logger"
)

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, workspaceID string, limit int, from, to *time.Time) ([]*model.AuditLog, error)
}

// AuditService decouples request handling from audit persistence: entries
// are handed off through a buffered channel and written by a background
// goroutine. When the buffer is full the entry is dropped, never blocking
// the request path.
type AuditService struct {
	logChan chan *model.AuditLog
	repo    AuditRepo
}

func NewAuditService(repo AuditRepo) *AuditService {
	svc := &AuditService{
		logChan: make(chan *model.AuditLog, 1000),
		repo:    repo,
	}
	go svc.processLogs()
	return svc
}

func (s *AuditService) Log(entry *model.AuditLog) {
	select {
	case s.logChan <- entry:
	default:
		logger.Warn("audit buffer full, dropping entry", "path", entry.Path)
	}
}

// Close stops accepting entries; the background writer drains what is
// already buffered.
func (s *AuditService) Close() {
	close(s.logChan)
}

func (s *AuditService) List(ctx context.Context, workspaceID string, limit int, from, to *time.Time) ([]*model.AuditLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, workspaceID, limit, from, to)
}

func (s *AuditService) processLogs() {
	for entry := range s.logChan {
		if s.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.repo.Insert(ctx, entry); err != nil {
			logger.Error("audit persist failed", "id", entry.ID, "error", err.Error())
		}
		cancel()
	}
}
