package httpapi

import (
	"net/http"
	"strconv"

	permissiondomain "accessplane/internal/permission/domain"
	permissionservice "accessplane/internal/permission/service"
	roleservice "accessplane/internal/role/service"
	userservice "accessplane/internal/user/service"
)

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleID    string `json:"role_id"`
	IsActive  *bool  `json:"is_active"`
}

type updateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	RoleID    *string `json:"role_id"`
	IsActive  *bool   `json:"is_active"`
}

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type updateRoleRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func pageParams(r *http.Request) (page, limit int32) {
	q := r.URL.Query()
	if v, err := strconv.ParseInt(q.Get("page"), 10, 32); err == nil {
		page = int32(v)
	}
	if v, err := strconv.ParseInt(q.Get("limit"), 10, 32); err == nil {
		limit = int32(v)
	}
	return page, limit
}

// --- users ---

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	res, err := a.users.List(r.Context(), page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]userResponse, 0, len(res.Users))
	for _, u := range res.Users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out, "total": res.Total})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	in := userservice.CreateInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		RoleID:    req.RoleID,
		IsActive:  true,
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	user, err := a.users.Create(r.Context(), actor, in, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	user, err := a.users.Update(r.Context(), actor, r.PathValue("id"), userservice.UpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		RoleID:    req.RoleID,
		IsActive:  req.IsActive,
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	if err := a.users.Delete(r.Context(), actor, r.PathValue("id"), requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.policy.ListEffectivePermissions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// --- roles ---

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.roles.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.roles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleWithPermissionsResponse(role))
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	role, err := a.roles.Create(r.Context(), actor, roleservice.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleResponse(role))
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	role, err := a.roles.Update(r.Context(), actor, r.PathValue("id"), roleservice.UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleResponse(role))
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	if err := a.roles.Delete(r.Context(), actor, r.PathValue("id"), requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- permissions ---

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.permissions.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (a *API) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	p, err := a.permissions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionResponse(p))
}

func (a *API) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	p, err := a.permissions.Create(r.Context(), actor, permissionservice.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Resource:    req.Resource,
		Action:      permissiondomain.Action(req.Action),
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPermissionResponse(p))
}

func (a *API) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := IdentityFrom(r.Context())
	p, err := a.permissions.Update(r.Context(), actor, r.PathValue("id"), permissionservice.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
	}, requestMeta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPermissionResponse(p))
}

func (a *API) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	if err := a.permissions.Delete(r.Context(), actor, r.PathValue("id"), requestMeta(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
