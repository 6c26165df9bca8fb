package chat

import (
	"fmt"
	"strings"
)

// IDPolicy selects how Reduce assigns ids to bot replies and how
// NextID proposes ids for new user entries.
type IDPolicy string

const (
	// IDPolicyMonotonic never hands out an id lower than one already stored
	// since the last ClearAll, so deletions cannot cause reuse.
	IDPolicyMonotonic IDPolicy = "monotonic"
	// IDPolicyLength uses len(entries)+1, which can repeat an id after a
	// deletion.
	IDPolicyLength IDPolicy = "length"
)

// ParseIDPolicy maps a configuration value to an IDPolicy. Empty input
// selects IDPolicyMonotonic.
func ParseIDPolicy(raw string) (IDPolicy, error) {
	switch IDPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", IDPolicyMonotonic:
		return IDPolicyMonotonic, nil
	case IDPolicyLength:
		return IDPolicyLength, nil
	default:
		return "", fmt.Errorf("unknown id policy %q", raw)
	}
}

// State is an immutable snapshot of the conversation. Reduce never
// modifies a State in place; it returns a new one.
type State struct {
	entries []Entry
	nextID  int
	policy  IDPolicy
}

// NewState builds a State holding entries in the given order.
func NewState(policy IDPolicy, entries ...Entry) State {
	if policy == "" {
		policy = IDPolicyMonotonic
	}
	s := State{
		entries: append([]Entry(nil), entries...),
		nextID:  1,
		policy:  policy,
	}
	for _, e := range entries {
		if e.ID >= s.nextID {
			s.nextID = e.ID + 1
		}
	}
	return s
}

// Policy returns the id policy the state was built with.
func (s State) Policy() IDPolicy {
	if s.policy == "" {
		return IDPolicyMonotonic
	}
	return s.policy
}

// Len returns the number of entries.
func (s State) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries, oldest first.
func (s State) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Find returns the first entry with id.
func (s State) Find(id int) (Entry, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.entries[i], true
	}
	return Entry{}, false
}

// NextID returns the id the next created entry receives.
func (s State) NextID() int {
	if s.Policy() == IDPolicyLength {
		return len(s.entries) + 1
	}
	if s.nextID < 1 {
		return 1
	}
	return s.nextID
}

func (s State) indexOf(id int) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s State) append(e Entry) State {
	entries := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	next := s.NextID()
	if e.ID >= next {
		next = e.ID + 1
	}
	return State{
		entries: append(entries, e),
		nextID:  next,
		policy:  s.policy,
	}
}

func (s State) update(id int, fn func(*Entry)) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	entries := s.Entries()
	fn(&entries[i])
	return State{entries: entries, nextID: s.nextID, policy: s.policy}
}

func (s State) remove(id int) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	entries := make([]Entry, 0, len(s.entries)-1)
	entries = append(entries, s.entries[:i]...)
	entries = append(entries, s.entries[i+1:]...)
	return State{entries: entries, nextID: s.nextID, policy: s.policy}
}
