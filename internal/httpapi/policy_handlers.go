package httpapi

import "net/http"

type decideRequest struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type checkRequest struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	Mode        string   `json:"mode"` // "any" or "all"
}

func (a *API) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := req.UserID
	if userID == "" {
		actor, _ := IdentityFrom(r.Context())
		userID = actor.UserID
	}
	decision, err := a.policy.Decide(r.Context(), userID, req.Resource, req.Action)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": decision.Allowed,
		"reason":  decision.Reason,
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := req.UserID
	if userID == "" {
		actor, _ := IdentityFrom(r.Context())
		userID = actor.UserID
	}
	var (
		ok  bool
		err error
	)
	switch req.Mode {
	case "", "any":
		ok, err = a.policy.HasAny(r.Context(), userID, req.Permissions)
	case "all":
		ok, err = a.policy.HasAll(r.Context(), userID, req.Permissions)
	default:
		writeError(w, http.StatusBadRequest, "mode must be any or all")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok})
}
