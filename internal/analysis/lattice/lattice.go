package lattice

import "github.com/gnolang/permcheck/internal/perm"

// State is the set of permissions held at a program point, ordered by
// inclusion. A nil *State is Bottom (unreachable).
type State struct {
	Held perm.Set
}

// NewState returns a reachable state holding perms.
func NewState(perms perm.Set) *State {
	return &State{Held: perms}
}

// IsBottom reports whether the state is unreachable.
func IsBottom(state *State) bool {
	return state == nil
}

// CloneState returns a copy of the state. Sets are immutable, so the copy
// shares them.
func CloneState(state *State) *State {
	if state == nil {
		return nil
	}
	return &State{Held: state.Held}
}

// Meet returns the permissions held in both states. Bottom is the identity:
// an unreachable predecessor constrains nothing.
func Meet(a, b *State) *State {
	if a == nil {
		return CloneState(b)
	}
	if b == nil {
		return CloneState(a)
	}
	return &State{Held: a.Held.Intersect(b.Held)}
}

// MeetAll folds Meet over states.
func MeetAll(states ...*State) *State {
	var out *State
	for _, s := range states {
		out = Meet(out, s)
	}
	return out
}

// StateEqual reports whether two states are identical.
func StateEqual(a, b *State) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Held.Equal(b.Held)
}

func (s *State) String() string {
	if s == nil {
		return "⊥"
	}
	return s.Held.String()
}
