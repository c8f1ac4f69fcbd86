package audit

import "time"

// Actor used when no identity is bound to the request.
const (
	SystemActorID   int64 = 0
	SystemActorName       = "Sistema"
	SystemActorRole       = "N/A"
)

// Entry is one immutable audit record.
type Entry struct {
	ID          int64
	At          time.Time
	ActorID     *int64
	ActorName   string
	ActorRole   string
	Operation   string
	Entity      string
	Description string
	Changes     *string
}

// ActorIDValue returns the actor id, or SystemActorID when unset.
func (e Entry) ActorIDValue() int64 {
	if e.ActorID == nil {
		return SystemActorID
	}
	return *e.ActorID
}

// ChangesValue returns the serialized payload or an empty string.
func (e Entry) ChangesValue() string {
	if e.Changes == nil {
		return ""
	}
	return *e.Changes
}

// Filters narrows audit listings. Zero values mean "no restriction"; From is
// inclusive and To exclusive.
type Filters struct {
	Actor     string
	Operation string
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps a page of entries.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
