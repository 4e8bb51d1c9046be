// Package service implements the registry's use cases. Each mutating
// operation runs inside one transaction that also carries its audit event, so
// a committed change is never visible without its audit row.
package service

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/complia/complia/pkg/audit"
	"github.com/complia/complia/pkg/auth"
	"github.com/complia/complia/pkg/llm"
	"github.com/complia/complia/pkg/storage"
)

// Deps are the collaborators shared by all services.
type Deps struct {
	DB       *sql.DB
	Recorder *audit.Recorder
	Storage  storage.Store
	Drafter  *llm.Drafter
	Hasher   auth.PasswordHasher
	Tokens   auth.TokenIssuer
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Registry bundles every service over one dependency set.
type Registry struct {
	Systems  *SystemService
	Versions *VersionService
	Sections *SectionService
	Evidence *EvidenceService
	Mappings *MappingService
	Exports  *ExportService
	Logging  *LoggingService
	Accounts *AccountService
	Audits   *AuditService
}

func NewRegistry(deps Deps) *Registry {
	d := &deps
	return &Registry{
		Systems:  &SystemService{deps: d},
		Versions: &VersionService{deps: d},
		Sections: &SectionService{deps: d},
		Evidence: &EvidenceService{deps: d},
		Mappings: &MappingService{deps: d},
		Exports:  &ExportService{deps: d},
		Logging:  &LoggingService{deps: d},
		Accounts: &AccountService{deps: d},
		Audits:   &AuditService{deps: d},
	}
}
