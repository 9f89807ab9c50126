// Package authz is the ledger's authorization collaborator: given an actor
// and an action it returns allow/deny. Denials are fatal to the request and
// short-circuit before any data access.
package authz

import (
	"contributi/internal/core"
)

// Action names the ledger operations that are permission-gated.
type Action string

const (
	ActionViewAny Action = "contributions.view_any"
	ActionCreate  Action = "contributions.create"
	ActionUpdate  Action = "contributions.update"
	ActionDelete  Action = "contributions.delete"
)

// CanViewAny reports whether the actor may list contributions at all.
// Every authenticated member can; base-role members only see their own rows
// (scoping is the ledger's concern, not authorization's).
func CanViewAny(actor *core.Member) bool {
	return actor != nil && len(actor.Roles) > 0
}

// CanCreate reports whether the actor may record contributions.
// Only elevated roles record entries, on their own or a member's behalf.
func CanCreate(actor *core.Member) bool {
	return actor != nil && actor.Elevated()
}

// CanUpdate reports whether the actor may edit the given contribution:
// the owning member, or any elevated role.
func CanUpdate(actor *core.Member, contribution *core.Contribution) bool {
	if actor == nil || contribution == nil {
		return false
	}
	return actor.Elevated() || actor.ID == contribution.MemberID
}

// CanDelete reports whether the actor may hard-delete contributions.
func CanDelete(actor *core.Member) bool {
	return actor != nil && actor.Elevated()
}

// SeesAllContributions reports whether listings should cover the whole
// group. Base-role members are scoped to their own records.
func SeesAllContributions(actor *core.Member) bool {
	return actor != nil && actor.Elevated()
}
