package domain

import "encoding/json"

// DashboardEntity is the kind of record a dashboard update refers to.
type DashboardEntity string

const (
	EntityCall   DashboardEntity = "call"
	EntityTicket DashboardEntity = "ticket"
	EntityDevice DashboardEntity = "device"
	EntitySystem DashboardEntity = "system"
	EntityAI     DashboardEntity = "ai"
)

// DashboardAction is what happened to the entity.
type DashboardAction string

const (
	ActionCreated       DashboardAction = "created"
	ActionUpdated       DashboardAction = "updated"
	ActionDeleted       DashboardAction = "deleted"
	ActionStatusChanged DashboardAction = "status_changed"
)

// DashboardUpdate is the payload of a dashboard:update event. Data is never
// interpreted here.
type DashboardUpdate struct {
	Type      DashboardEntity `json:"type"`
	Action    DashboardAction `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// DashboardView names one pre-aggregated metrics bundle.
type DashboardView string

const (
	ViewOverview      DashboardView = "overview"
	ViewCalls         DashboardView = "calls"
	ViewTickets       DashboardView = "tickets"
	ViewDevices       DashboardView = "devices"
	ViewOrganizations DashboardView = "organizations"
	ViewContacts      DashboardView = "contacts"
	ViewSystem        DashboardView = "system"
	ViewCosts         DashboardView = "costs"
	ViewAgents        DashboardView = "agents"
	ViewLiveCalls     DashboardView = "livecalls"
	ViewQuality       DashboardView = "quality"
	ViewAnalytics     DashboardView = "analytics"
	ViewCompliance    DashboardView = "compliance"
)

var allViews = []DashboardView{
	ViewOverview, ViewCalls, ViewTickets, ViewDevices, ViewOrganizations,
	ViewContacts, ViewSystem, ViewCosts, ViewAgents, ViewLiveCalls,
	ViewQuality, ViewAnalytics, ViewCompliance,
}

// AllViews returns every known dashboard view.
func AllViews() []DashboardView {
	out := make([]DashboardView, len(allViews))
	copy(out, allViews)
	return out
}

// IsValid checks if the view is one of the known bundles.
func (v DashboardView) IsValid() bool {
	for _, known := range allViews {
		if v == known {
			return true
		}
	}
	return false
}

// InvalidatedViews returns the views made stale by an update to entity.
// Entities with no cached view return nil.
func InvalidatedViews(entity DashboardEntity) []DashboardView {
	switch entity {
	case EntityCall:
		return []DashboardView{ViewCalls, ViewOverview}
	case EntityTicket:
		return []DashboardView{ViewTickets, ViewOverview}
	case EntityDevice:
		return []DashboardView{ViewDevices}
	case EntitySystem:
		return []DashboardView{ViewSystem}
	default:
		return nil
	}
}
