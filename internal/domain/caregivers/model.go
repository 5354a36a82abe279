package caregivers

import "time"

// Scope define los permisos delegables sobre un child.
type Scope string

const (
	ScopeChildRead    Scope = "child:read"
	ScopeEventsRead   Scope = "events:read"
	ScopeEventsLog    Scope = "events:log"    // crear / iniciar eventos
	ScopeEventsManage Scope = "events:manage" // completar / cancelar / editar
)

type Status string

const (
	StatusInvited Status = "invited"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Grant delega acceso de cuidado sobre un child a otro usuario.
type Grant struct {
	ID string

	ChildID string

	OwnerUserID   string // quien comparte
	GranteeUserID string // cuidador delegado

	Scopes []Scope
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}
