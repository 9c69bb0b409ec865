package httpapi

import (
	"time"

	auditdomain "accessplane/internal/audit/domain"
	permissiondomain "accessplane/internal/permission/domain"
	roledomain "accessplane/internal/role/domain"
)

type roleResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	PermissionIDs []string  `json:"permission_ids"`
	IsSystem      bool      `json:"is_system"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type rolePermissionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type roleWithPermissionsResponse struct {
	roleResponse
	Permissions []rolePermissionResponse `json:"permissions"`
}

type permissionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type auditEntryResponse struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	ActorEmail string         `json:"actor_email"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type aggregationResponse struct {
	Group           string    `json:"group"`
	Count           int64     `json:"count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

func toRoleResponse(role *roledomain.Role) roleResponse {
	ids := role.PermissionIDs
	if ids == nil {
		ids = []string{}
	}
	return roleResponse{
		ID:            role.ID,
		Name:          role.Name,
		Description:   role.Description,
		PermissionIDs: ids,
		IsSystem:      role.IsSystem,
		CreatedAt:     role.CreatedAt,
		UpdatedAt:     role.UpdatedAt,
	}
}

func toRoleWithPermissionsResponse(role *roledomain.RoleWithPermissions) roleWithPermissionsResponse {
	out := roleWithPermissionsResponse{
		roleResponse: toRoleResponse(&role.Role),
		Permissions:  make([]rolePermissionResponse, 0, len(role.Permissions)),
	}
	for _, p := range role.Permissions {
		out.Permissions = append(out.Permissions, rolePermissionResponse{
			ID:       p.ID,
			Name:     p.Name,
			Resource: p.Resource,
			Action:   p.Action,
		})
	}
	return out
}

func toPermissionResponse(p *permissiondomain.Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Resource:    p.Resource,
		Action:      string(p.Action),
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toAuditEntryResponse(e *auditdomain.Entry) auditEntryResponse {
	return auditEntryResponse{
		ID:         e.ID,
		ActorID:    e.ActorID,
		ActorEmail: e.ActorEmail,
		Action:     string(e.Action),
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Metadata:   e.Metadata,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		Timestamp:  e.Timestamp,
	}
}

func toAuditEntryResponses(entries []*auditdomain.Entry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	return out
}

func toAggregationResponses(rows []*auditdomain.Aggregation) []aggregationResponse {
	out := make([]aggregationResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, aggregationResponse{
			Group:           a.Group,
			Count:           a.Count,
			FirstOccurrence: a.FirstOccurrence,
			LastOccurrence:  a.LastOccurrence,
		})
	}
	return out
}
