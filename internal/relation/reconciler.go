// Package relation manages idempotent on/off relations such as bookmarks and
// follows. Membership is derived from the latest pushed snapshot, and a
// toggle turns the observed state into exactly one add or one remove.
package relation

import (
	"context"
	"sync"

	"inkwell/internal/docstore"
	"inkwell/internal/observability"
)

// Config describes one relation collection in terms of the fields naming its
// two endpoints.
type Config struct {
	// Relation labels the reconciler in logs and metrics ("bookmark",
	// "follow").
	Relation    string
	Collection  string
	OwnerField  string
	TargetField string
}

// AddFunc creates the relation record for (ownerID, targetID) and returns
// its document id.
type AddFunc func(ctx context.Context, ownerID, targetID string) (string, error)

// RemoveFunc deletes the relation record docID for (ownerID, targetID).
type RemoveFunc func(ctx context.Context, docID, ownerID, targetID string) error

// Reconciler tracks the membership set for one owner and resolves toggles
// against it. It performs no locking around toggle decisions: membership is
// whatever the latest snapshot said, and two toggles racing before a refresh
// may both observe "not a member". The next snapshot self-corrects.
type Reconciler struct {
	cfg     Config
	ownerID string
	add     AddFunc
	remove  RemoveFunc

	// mu guards the map itself, not the read-then-act sequence.
	mu      sync.RWMutex
	members map[string]string // targetID -> relation doc id
}

func NewReconciler(cfg Config, ownerID string, add AddFunc, remove RemoveFunc) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		ownerID: ownerID,
		add:     add,
		remove:  remove,
		members: make(map[string]string),
	}
}

// ApplySnapshot replaces the membership set from a full relation snapshot.
// Documents whose owner field does not match this reconciler's owner are
// ignored.
func (r *Reconciler) ApplySnapshot(docs []docstore.Document) {
	members := make(map[string]string, len(docs))
	for _, doc := range docs {
		owner, _ := doc[r.cfg.OwnerField].(string)
		if owner != r.ownerID {
			continue
		}
		target, _ := doc[r.cfg.TargetField].(string)
		id, _ := doc["id"].(string)
		if target == "" || id == "" {
			continue
		}
		members[target] = id
	}
	r.mu.Lock()
	r.members = members
	r.mu.Unlock()
}

// IsMember reports whether targetID is in the observed membership set.
func (r *Reconciler) IsMember(targetID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[targetID]
	return ok
}

// Members returns the observed target ids.
func (r *Reconciler) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]string, 0, len(r.members))
	for t := range r.members {
		targets = append(targets, t)
	}
	return targets
}

// Toggle adds the relation when targetID is not an observed member and
// removes it when it is. Returns true when the resolution was an add. On
// failure the membership map is left untouched; the caller may retry.
func (r *Reconciler) Toggle(ctx context.Context, targetID string) (bool, error) {
	r.mu.RLock()
	docID, member := r.members[targetID]
	r.mu.RUnlock()

	if member {
		if err := r.remove(ctx, docID, r.ownerID, targetID); err != nil {
			return false, err
		}
		observability.ToggleOperations.WithLabelValues(r.cfg.Relation, "remove").Inc()
		// Drop the target eagerly so back-to-back toggles behave sanely
		// before the next snapshot lands.
		r.mu.Lock()
		delete(r.members, targetID)
		r.mu.Unlock()
		return false, nil
	}

	docID, err := r.add(ctx, r.ownerID, targetID)
	if err != nil {
		return false, err
	}
	observability.ToggleOperations.WithLabelValues(r.cfg.Relation, "add").Inc()
	r.mu.Lock()
	r.members[targetID] = docID
	r.mu.Unlock()
	return true, nil
}
