package fake

import "sync"

type Emitted struct {
	CompanyID string
	Event     string
	Payload   any
}

// Notifier records every emitted event.
type Notifier struct {
	mu     sync.Mutex
	events []Emitted
}

func (n *Notifier) EmitToCompany(companyID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Emitted{CompanyID: companyID, Event: event, Payload: payload})
}

func (n *Notifier) Events() []Emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Emitted(nil), n.events...)
}

// Named returns the events with the given name.
func (n *Notifier) Named(event string) []Emitted {
	var res []Emitted
	for _, e := range n.Events() {
		if e.Event == event {
			res = append(res, e)
		}
	}
	return res
}
