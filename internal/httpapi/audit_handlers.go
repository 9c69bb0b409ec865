package httpapi

import (
	"net/http"

	auditdomain "accessplane/internal/audit/domain"
)

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startDate, err := parseTimeParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date")
		return
	}
	endDate, err := parseTimeParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date")
		return
	}
	filter := auditdomain.Filter{
		ActorID:    q.Get("actor_id"),
		Action:     auditdomain.Action(q.Get("action")),
		Resource:   q.Get("resource"),
		ResourceID: q.Get("resource_id"),
		StartDate:  startDate,
		EndDate:    endDate,
	}
	page, limit := pageParams(r)
	res, err := a.audit.List(r.Context(), filter, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     toAuditEntryResponses(res.Entries),
		"total":       res.Total,
		"page":        res.Page,
		"limit":       res.Limit,
		"total_pages": res.TotalPages,
	})
}

func (a *API) handleAggregateAuditLogs(w http.ResponseWriter, r *http.Request) {
	group := auditdomain.GroupBy(r.URL.Query().Get("group_by"))
	startDate, err := parseTimeParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date")
		return
	}
	endDate, err := parseTimeParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date")
		return
	}
	rows, err := a.audit.Aggregate(r.Context(), group, startDate, endDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group_by": group, "rows": toAggregationResponses(rows)})
}

func (a *API) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := a.audit.Trail(r.Context(), q.Get("resource"), q.Get("resource_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditEntryResponses(entries)})
}
