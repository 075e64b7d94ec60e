package audit

import (
	"orgadmin/internal/model"
)

// State is how a unit of work holds an entity at commit time.
type State int

const (
	Unchanged State = iota
	New
	Changed
	Detached
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Changed:
		return "changed"
	case Detached:
		return "detached"
	default:
		return "unchanged"
	}
}

// Kind is the stamp a staged entity receives.
type Kind int

const (
	Skip Kind = iota
	Create
	Modify
	Delete
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	default:
		return "skip"
	}
}

// Classify decides the stamp for one staged entity. A changed entity whose
// deletion signal went from false to true is a delete, anything else changed
// is a modify.
func Classify(state State, a *model.Auditable) Kind {
	switch state {
	case New:
		return Create
	case Changed:
		if a.DeletionRequested() {
			return Delete
		}
		return Modify
	default:
		return Skip
	}
}
