package evidence

import "evidencebot/internal/domain"

// Action tells the caller what to do with an observed (key, outcome) pair.
type Action int

const (
	ActionEmit    Action = iota // first sighting of the key
	ActionIgnore                // already decided
	ActionUpgrade               // earlier pass overridden by a fail
)

func (a Action) String() string {
	switch a {
	case ActionEmit:
		return "emit"
	case ActionUpgrade:
		return "upgrade"
	}
	return "ignore"
}

// Ledger tracks the final outcome per ticket key within one run. Fail wins:
// once a key has failed it stays failed.
type Ledger struct {
	status map[string]domain.Outcome
	order  []string
}

func NewLedger() *Ledger {
	return &Ledger{status: make(map[string]domain.Outcome)}
}

// Observe decides and records in one step.
func (l *Ledger) Observe(key string, o domain.Outcome) Action {
	a := l.Peek(key, o)
	if a != ActionIgnore {
		l.Commit(key, o)
	}
	return a
}

// Peek returns what Observe would do without recording anything.
func (l *Ledger) Peek(key string, o domain.Outcome) Action {
	prev, seen := l.status[key]
	if !seen {
		return ActionEmit
	}
	if prev == domain.OutcomePass && o == domain.OutcomeFail {
		return ActionUpgrade
	}
	return ActionIgnore
}

// Commit records o as the outcome of key.
func (l *Ledger) Commit(key string, o domain.Outcome) {
	if _, seen := l.status[key]; !seen {
		l.order = append(l.order, key)
	}
	l.status[key] = o
}

func (l *Ledger) Status(key string) (domain.Outcome, bool) {
	o, ok := l.status[key]
	return o, ok
}

// Keys returns the keys in first-seen order.
func (l *Ledger) Keys() []string {
	return append([]string(nil), l.order...)
}

// Observation is one classified entry reduced to its key.
type Observation struct {
	Key     string
	Outcome domain.Outcome
}

// Deduplicate folds a sequence of observations into one per key, in
// first-seen order, applying fail-wins.
func Deduplicate(in []Observation) []Observation {
	l := NewLedger()
	for _, ob := range in {
		l.Observe(ob.Key, ob.Outcome)
	}
	out := make([]Observation, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, Observation{Key: k, Outcome: l.status[k]})
	}
	return out
}
