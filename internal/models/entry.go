package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// OptimisticStatus is the lifecycle state of a locally-initiated
// mutation: pending -> syncing -> {synced | failed}, with
// pendingDeletion and pendingEdit as side branches for further
// mutations against an already-confirmed entity.
type OptimisticStatus string

const (
	StatusPending         OptimisticStatus = "pending"
	StatusSyncing         OptimisticStatus = "syncing"
	StatusSynced          OptimisticStatus = "synced"
	StatusPendingDeletion OptimisticStatus = "pendingDeletion"
	StatusPendingEdit     OptimisticStatus = "pendingEdit"
	StatusFailed          OptimisticStatus = "failed"
)

// OptimisticEntry is the write-ahead record tracking one in-flight
// local mutation until it is confirmed (or fails) against the remote
// store. Snapshot holds the full Post as currently known locally.
type OptimisticEntry struct {
	LocalID      string           `gorm:"type:varchar(64);primaryKey;column:local_id" json:"localID"`
	Status       OptimisticStatus `gorm:"type:varchar(24);not null;column:status" json:"status"`
	Snapshot     datatypes.JSON   `gorm:"column:snapshot" json:"data"`
	DiscussionID string           `gorm:"type:varchar(64);column:discussion_id" json:"discussionID,omitempty"`
	CreatedAt    time.Time        `gorm:"not null;column:created_at" json:"createdAt"`
}

// TableName specifies the table name for OptimisticEntry
func (OptimisticEntry) TableName() string {
	return "drops_entries"
}

// Post decodes the locally held snapshot
func (e *OptimisticEntry) Post() (Post, error) {
	var p Post
	if len(e.Snapshot) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(e.Snapshot, &p); err != nil {
		return Post{}, err
	}
	return p, nil
}

// SetPost replaces the locally held snapshot
func (e *OptimisticEntry) SetPost(p Post) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	e.Snapshot = datatypes.JSON(data)
	return nil
}

// Clone returns a deep copy so callers never mutate a stored entry by
// reference. Readers always observe a fully-formed prior or next value.
func (e *OptimisticEntry) Clone() *OptimisticEntry {
	out := *e
	out.Snapshot = append(datatypes.JSON(nil), e.Snapshot...)
	return &out
}
