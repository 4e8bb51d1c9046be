package service

import (
	"context"

	"github.com/complia/complia/pkg/apperr"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/model"
	"github.com/complia/complia/pkg/store"
)

// AuditService exposes the read side of the audit trail. Writes happen only
// through the Recorder inside mutating transactions.
type AuditService struct {
	deps *Deps
}

func (s *AuditService) List(ctx context.Context, p *auth.Principal, f store.AuditFilter) ([]*model.AuditEvent, error) {
	if !p.Can(model.RoleReviewer) {
		return nil, apperr.Forbidden("reviewer role required")
	}
	return store.NewAuditStore(s.deps.DB).List(ctx, p.OrgID, f)
}
