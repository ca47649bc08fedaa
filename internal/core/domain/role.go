package domain

import "strings"

// Role is the authenticated operator role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAgent     Role = "agent"
	RoleRequester Role = "requester"
)

// IsValid checks if the role is one of the defined roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleRequester:
		return true
	}
	return false
}

// ParseRole resolves a role string. Empty or unknown input resolves to the
// most restrictive role.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return RoleRequester
	}
	return r
}

// PermissionSet is the fixed capability record of a role.
type PermissionSet struct {
	CanInitiateCall        bool `json:"canInitiateCall"`
	CanViewTranscript      bool `json:"canViewTranscript"`
	CanAccessAllAgents     bool `json:"canAccessAllAgents"`
	CanEscalate            bool `json:"canEscalate"`
	CanViewCosts           bool `json:"canViewCosts"`
	MaxCallDurationMinutes int  `json:"maxCallDurationMinutes"`
}

// PermissionsFor returns the permission record for r. Roles outside the
// defined set get the requester record.
func PermissionsFor(r Role) PermissionSet {
	switch r {
	case RoleAdmin:
		return PermissionSet{
			CanInitiateCall:        true,
			CanViewTranscript:      true,
			CanAccessAllAgents:     true,
			CanEscalate:            true,
			CanViewCosts:           true,
			MaxCallDurationMinutes: 60,
		}
	case RoleAgent:
		return PermissionSet{
			CanInitiateCall:        true,
			CanViewTranscript:      true,
			CanAccessAllAgents:     false,
			CanEscalate:            true,
			CanViewCosts:           false,
			MaxCallDurationMinutes: 30,
		}
	case RoleRequester:
		return requesterPermissions()
	default:
		return requesterPermissions()
	}
}

func requesterPermissions() PermissionSet {
	return PermissionSet{
		CanInitiateCall:        true,
		CanViewTranscript:      true,
		CanAccessAllAgents:     false,
		CanEscalate:            false,
		CanViewCosts:           false,
		MaxCallDurationMinutes: 15,
	}
}
