package domain

// Role differentiates operators allowed to manage the integration.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated caller of the ticket API.
type Principal struct {
	SubjectID string
	Name      string
	Role      Role
}
