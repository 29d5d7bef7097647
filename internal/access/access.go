// Package access evaluates role-based capabilities. Evaluation is pure:
// decisions are derived from (action, role, resource, requester) on every
// check and never stored.
package access

// Role is the actor's permission grouping.
type Role string

// Roles recognized by the evaluator. Anything else carries no capabilities.
const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Action is a capability being requested.
type Action string

// Actions gated by the evaluator.
const (
	ActionCreate Action = "create"
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
)

// Kind distinguishes resource types with different edit rules.
type Kind string

// Resource kinds.
const (
	KindProject Kind = "project"
	KindTask    Kind = "task"
)

// Resource describes the target of a capability check. OwnerID is the
// identity the resource is attributed to: created_by for projects,
// assignee for tasks.
type Resource struct {
	Kind    Kind
	OwnerID string
}

// Decision is the outcome of a capability check. Reason is a
// human-readable denial message surfaced directly to the user.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CheckAccess evaluates whether an actor with the given role may perform
// action on resource. requesterID is the acting identity, used only for
// ownership comparison. A zero-value or unknown role carries no
// capabilities at all.
func CheckAccess(action Action, role Role, resource Resource, requesterID string) Decision {
	if !role.Valid() {
		return deny("Sign in to continue")
	}
	if role == RoleAdmin {
		return allow()
	}

	// Member path.
	switch action {
	case ActionView:
		return allow()
	case ActionCreate:
		return deny("Only admins can create " + plural(resource.Kind))
	case ActionEdit:
		if resource.Kind == KindTask {
			if resource.OwnerID != "" && resource.OwnerID == requesterID {
				return allow()
			}
			return deny("You can only edit tasks assigned to you")
		}
		return deny("Only admins can edit projects")
	case ActionDelete:
		return deny("Only admins can delete " + plural(resource.Kind))
	case ActionAssign:
		return deny("Only admins can assign tasks")
	default:
		return deny("Unknown action")
	}
}

// CanView is a convenience wrapper for list endpoints.
func CanView(role Role) bool {
	return CheckAccess(ActionView, role, Resource{}, "").Allowed
}

func plural(k Kind) string {
	switch k {
	case KindProject:
		return "projects"
	case KindTask:
		return "tasks"
	default:
		return "resources"
	}
}
