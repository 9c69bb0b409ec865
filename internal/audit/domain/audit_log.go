package domain

import "time"

// SystemActorID is the reserved actor id used when an audit event has no
// resolvable user, e.g. a failed login against an unknown email. It is the
// all-zero UUID, outside the real user id space.
const SystemActorID = "00000000-0000-0000-0000-000000000000"

// Action is the audit event kind.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionRead             Action = "READ"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionLogin            Action = "LOGIN"
	ActionLogout           Action = "LOGOUT"
	ActionLoginFailed      Action = "LOGIN_FAILED"
	ActionPasswordChange   Action = "PASSWORD_CHANGE"
	ActionPermissionDenied Action = "PERMISSION_DENIED"
)

// Valid reports whether a is a known audit action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionLogin,
		ActionLogout, ActionLoginFailed, ActionPasswordChange, ActionPermissionDenied:
		return true
	default:
		return false
	}
}

// Entry is one append-only audit event. ActorID and ActorEmail are a
// denormalized snapshot taken at write time so the trail stays readable after
// the actor is deleted. Entries are never updated or deleted by the
// application.
type Entry struct {
	ID         string
	ActorID    string
	ActorEmail string
	Action     Action
	Resource   string
	ResourceID string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
}

// RequestMeta carries request-scoped client details into the trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// GroupBy selects the aggregation dimension.
type GroupBy string

const (
	GroupByAction   GroupBy = "action"
	GroupByResource GroupBy = "resource"
	GroupByActor    GroupBy = "actor"
)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByAction, GroupByResource, GroupByActor:
		return true
	default:
		return false
	}
}

// Filter narrows a list query. All set fields are ANDed together; the date
// range is inclusive on both ends.
type Filter struct {
	ActorID    string
	Action     Action
	Resource   string
	ResourceID string
	StartDate  *time.Time
	EndDate    *time.Time
}

// Aggregation is one row of a grouped rollup: the group key, how many entries
// fell into it, and the first and last occurrence.
type Aggregation struct {
	Group           string
	Count           int64
	FirstOccurrence time.Time
	LastOccurrence  time.Time
}
