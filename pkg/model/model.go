// Package model defines the persistent entities of the compliance registry:
// organizations, users, AI systems, documentation versions, Annex IV sections,
// evidence items and their mappings, exports, decision logs and audit events.
package model

import (
	"time"
)

// Role is a user's role within an organization. Roles are totally ordered for
// RBAC checks: viewer < reviewer < editor < admin.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleReviewer: 2,
	RoleEditor:   3,
	RoleAdmin:    4,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// VersionStatus is the lifecycle state of a SystemVersion.
type VersionStatus string

const (
	StatusDraft    VersionStatus = "draft"
	StatusReview   VersionStatus = "review"
	StatusApproved VersionStatus = "approved"
)

func (s VersionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusApproved:
		return true
	}
	return false
}

// Organization is the tenant root. Every downstream entity is reachable from
// exactly one organization; deletion cascades.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User belongs to one organization. The authentication counters are consumed
// by the auth collaborator, not by the registry core.
type User struct {
	ID                  string     `json:"id"`
	OrgID               string     `json:"org_id"`
	Email               string     `json:"email"`
	Role                Role       `json:"role"`
	Active              bool       `json:"active"`
	PasswordHash        string     `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
}

// UserInvite is a pending invitation to join an organization. Only the
// SHA-256 of the invite token is stored; the plaintext is shown once.
type UserInvite struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	TokenHash  string     `json:"-"`
	InvitedBy  *string    `json:"invited_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// AISystem is a catalogued AI system. RowVersion is a monotonically increasing
// revision counter used for optimistic concurrency; it is distinct from the
// SystemVersion entity.
type AISystem struct {
	ID                string    `json:"id"`
	OrgID             string    `json:"org_id"`
	Name              string    `json:"name"`
	IntendedPurpose   string    `json:"intended_purpose"`
	HRUseCaseType     string    `json:"hr_use_case_type"`
	DeploymentType    string    `json:"deployment_type"`
	DecisionInfluence string    `json:"decision_influence"`
	OwnerUserID       *string   `json:"owner_user_id,omitempty"`
	RowVersion        int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SystemVersion is one immutable documentation version of an AI system.
// Labels are unique per system and never reused.
type SystemVersion struct {
	ID          string        `json:"id"`
	AISystemID  string        `json:"ai_system_id"`
	Label       string        `json:"label"`
	Status      VersionStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
	ReleaseDate *string       `json:"release_date,omitempty"` // YYYY-MM-DD
	ApprovedBy  *string       `json:"approved_by,omitempty"`
	ApprovedAt  *string       `json:"approved_at,omitempty"` // YYYY-MM-DD
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// AnnexSection holds the content of one Annex IV section for a version.
// Content is a free-form JSON object keyed by field name.
type AnnexSection struct {
	ID                string         `json:"id"`
	VersionID         string         `json:"version_id"`
	SectionKey        string         `json:"section_key"`
	Content           map[string]any `json:"content"`
	EvidenceRefs      []string       `json:"evidence_refs"`
	CompletenessScore float64        `json:"completeness_score"`
	LLMAssisted       bool           `json:"llm_assisted"`
	LastEditedBy      *string        `json:"last_edited_by,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// EvidenceType discriminates the shape of EvidenceItem.TypeMetadata.
type EvidenceType string

const (
	EvidenceUpload EvidenceType = "upload"
	EvidenceURL    EvidenceType = "url"
	EvidenceGit    EvidenceType = "git"
	EvidenceTicket EvidenceType = "ticket"
	EvidenceNote   EvidenceType = "note"
)

func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceUpload, EvidenceURL, EvidenceGit, EvidenceTicket, EvidenceNote:
		return true
	}
	return false
}

// Classification is the sensitivity level of an evidence item.
type Classification string

const (
	ClassPublic       Classification = "public"
	ClassInternal     Classification = "internal"
	ClassConfidential Classification = "confidential"
)

func (c Classification) Valid() bool {
	switch c {
	case ClassPublic, ClassInternal, ClassConfidential:
		return true
	}
	return false
}

// EvidenceItem is an org-scoped piece of evidence. Type is immutable after
// creation; TypeMetadata carries the type-specific payload.
type EvidenceItem struct {
	ID             string         `json:"id"`
	OrgID          string         `json:"org_id"`
	Type           EvidenceType   `json:"type"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Tags           []string       `json:"tags"`
	Classification Classification `json:"classification"`
	TypeMetadata   map[string]any `json:"type_metadata"`
	CreatedBy      *string        `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TargetType addresses a sub-target of a version in an evidence mapping.
type TargetType string

const (
	TargetSection     TargetType = "section"
	TargetField       TargetType = "field"
	TargetRequirement TargetType = "requirement"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetSection, TargetField, TargetRequirement:
		return true
	}
	return false
}

// MappingStrength grades how strongly a piece of evidence supports a target.
type MappingStrength string

const (
	StrengthWeak   MappingStrength = "weak"
	StrengthMedium MappingStrength = "medium"
	StrengthStrong MappingStrength = "strong"
)

func (s MappingStrength) Valid() bool {
	switch s {
	case StrengthWeak, StrengthMedium, StrengthStrong:
		return true
	}
	return false
}

// EvidenceMapping links an EvidenceItem to a sub-target of a SystemVersion.
// (EvidenceID, VersionID, TargetType, TargetKey) is unique.
type EvidenceMapping struct {
	ID         string          `json:"id"`
	EvidenceID string          `json:"evidence_id"`
	VersionID  string          `json:"version_id"`
	TargetType TargetType      `json:"target_type"`
	TargetKey  string          `json:"target_key"`
	Strength   MappingStrength `json:"strength,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedBy  *string         `json:"created_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ExportType distinguishes full exports from diff exports.
type ExportType string

const (
	ExportFull ExportType = "full"
	ExportDiff ExportType = "diff"
)

// Export is an immutable record of one generated export package. Its
// existence makes an approved version immutable.
type Export struct {
	ID                string     `json:"id"`
	VersionID         string     `json:"version_id"`
	ExportType        ExportType `json:"export_type"`
	SnapshotHash      string     `json:"snapshot_hash"`
	StorageURI        string     `json:"storage_uri"`
	FileSize          int64      `json:"file_size"`
	CompareVersionID  *string    `json:"compare_version_id,omitempty"`
	CompletenessScore float64    `json:"completeness_score"`
	CreatedBy         *string    `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LogAPIKey authenticates decision-log ingestion for one version. Only the
// SHA-256 of the plaintext key is stored.
type LogAPIKey struct {
	ID          string     `json:"id"`
	VersionID   string     `json:"version_id"`
	Name        string     `json:"name"`
	KeyHash     string     `json:"-"`
	AllowRawPII bool       `json:"allow_raw_pii"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DecisionLog is one ingested decision event. (VersionID, EventID) is unique
// for idempotent ingestion.
type DecisionLog struct {
	ID         string          `json:"id"`
	VersionID  string          `json:"version_id"`
	EventID    string          `json:"event_id"`
	EventJSON  map[string]any  `json:"event_json"`
	EventTime  time.Time       `json:"event_time"`
	IngestedAt time.Time       `json:"ingested_at"`
}

// HighRiskAssessment is a heuristic high-risk score for an AI system. It is
// not regulatory advice.
type HighRiskAssessment struct {
	ID         string    `json:"id"`
	AISystemID string    `json:"ai_system_id"`
	Score      int       `json:"score"`
	RiskLevel  string    `json:"risk_level"`
	Rationale  []string  `json:"rationale"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEvent is one append-only audit record. The store rejects UPDATE and
// DELETE at the database level.
type AuditEvent struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"org_id"`
	UserID     *string        `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	DiffJSON   map[string]any `json:"diff_json,omitempty"`
	IP         string         `json:"ip,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
