package catalog

import (
	"fmt"
	"strings"
)

// Mode governs how the catalog reconciles a session's uploads against the
// records it already holds for the connector.
type Mode string

const (
	// ModeStream applies batches incrementally as they arrive.
	ModeStream Mode = "stream"
	// ModeAccrue only adds or updates; nothing is removed.
	ModeAccrue Mode = "accrue"
	// ModeReplace treats the committed upsert set as authoritative and prunes
	// records absent from it.
	ModeReplace Mode = "replace"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStream, ModeAccrue, ModeReplace:
		return m, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", s)
	}
}

// Verb is an action issued within an open session.
type Verb string

const (
	VerbUpsert Verb = "upsert"
	VerbDelete Verb = "delete"
)

// ParseVerb validates an action verb.
func ParseVerb(s string) (Verb, error) {
	switch v := Verb(strings.ToLower(strings.TrimSpace(s))); v {
	case VerbUpsert, VerbDelete:
		return v, nil
	default:
		return "", fmt.Errorf("unknown session action %q", s)
	}
}

// State is the client-side session state.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}
