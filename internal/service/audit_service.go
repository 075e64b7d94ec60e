package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"orgadmin/internal/model"
	"orgadmin/internal/repository"
)

type AuditLogResponse struct {
	ID             uuid.UUID  `json:"id"`
	ActorID        *uuid.UUID `json:"actor_id"`
	Action         string     `json:"action"`
	Entity         string     `json:"entity"`
	EntityID       uuid.UUID  `json:"entity_id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	At             time.Time  `json:"at"`
}

type AuditQuery struct {
	Entity   string
	EntityID *uuid.UUID
	ActorID  *uuid.UUID
	// Organizations limits the trail to these tenants; nil reads everything.
	Organizations []uuid.UUID
	// Unowned admits catalog rows alongside Organizations.
	Unowned bool
	Page    int
	Limit   int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns the trail newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	filter := repository.AuditFilter{
		Entity:        q.Entity,
		EntityID:      q.EntityID,
		ActorID:       q.ActorID,
		Organizations: q.Organizations,
		Unowned:       q.Unowned,
	}
	logs, total, err := s.repo.List(ctx, filter, q.Page, q.Limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditLogResponse(l))
	}
	return res, total, nil
}

func toAuditLogResponse(l model.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:             l.ID,
		ActorID:        l.ActorID,
		Action:         l.Action,
		Entity:         l.Entity,
		EntityID:       l.EntityID,
		OrganizationID: l.OrganizationID,
		At:             l.At,
	}
}
