// Package timeline turns fetched texts into timeline entries and decides when
// the host should ask again.
package timeline

import (
	"encoding/json"
	"time"
)

// Entry is one timestamped snapshot of display content.
type Entry struct {
	Date  time.Time `json:"date"`
	Texts []string  `json:"texts"`
}

// PolicyKind tells the host how to schedule the next reload.
type PolicyKind int

const (
	// PolicyNever disables automatic reloads until an external trigger.
	PolicyNever PolicyKind = iota
	// PolicyAfter asks for a reload no earlier than Policy.Date.
	PolicyAfter
)

func (k PolicyKind) String() string {
	if k == PolicyAfter {
		return "after"
	}
	return "never"
}

// Policy is the refresh policy attached to a Timeline.
type Policy struct {
	Kind PolicyKind
	Date time.Time
}

// After returns a policy reloading at or after t.
func After(t time.Time) Policy {
	return Policy{Kind: PolicyAfter, Date: t}
}

// Never returns a policy that waits for an external trigger.
func Never() Policy {
	return Policy{Kind: PolicyNever}
}

func (p Policy) String() string {
	if p.Kind == PolicyAfter {
		return "after(" + p.Date.Format(time.RFC3339) + ")"
	}
	return "never"
}

type policyJSON struct {
	Kind string     `json:"kind"`
	Date *time.Time `json:"date,omitempty"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	out := policyJSON{Kind: p.Kind.String()}
	if p.Kind == PolicyAfter {
		d := p.Date
		out.Date = &d
	}
	return json.Marshal(out)
}

// Timeline is an ordered list of entries plus the reload policy.
type Timeline struct {
	Entries []Entry `json:"entries"`
	Policy  Policy  `json:"policy"`
}

// Configuration is the user-facing widget configuration. It is carried
// through to the renderers and has no effect on fetching or scheduling.
type Configuration struct {
	FavoriteEmoji string `json:"favorite_emoji,omitempty"`
}

// Context is what the host passes along with every callback.
type Context struct {
	IsPreview     bool
	Configuration Configuration
}
