package modify

import (
	"context"
	"sync"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/pingcap/errors"
)

// Arena hands out tickets for nodes that are created but not yet flushed.
// The engine answers a flush with (tmpId, id) pairs which resolve the
// tickets; references to a ticket can be encoded once it is resolved.
type Arena struct {
	mu      sync.Mutex
	next    uint32
	tickets map[uint32]*Ticket
}

func NewArena() *Arena {
	return &Arena{tickets: make(map[uint32]*Ticket)}
}

// Ticket is the pending id of a node create.
type Ticket struct {
	tmpID uint32
	done  chan struct{}
	id    uint32
	err   error
}

// New allocates a ticket with a fresh temporary id.
func (a *Arena) New() *Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	t := &Ticket{tmpID: a.next, done: make(chan struct{})}
	a.tickets[t.tmpID] = t
	return t
}

// Resolve completes the ticket with tmpID. Unknown or already completed
// tickets are ignored.
func (a *Arena) Resolve(tmpID, id uint32) {
	a.complete(tmpID, id, nil)
}

// Fail completes the ticket with an error.
func (a *Arena) Fail(tmpID uint32, err error) {
	a.complete(tmpID, 0, err)
}

func (a *Arena) complete(tmpID, id uint32, err error) {
	a.mu.Lock()
	t, ok := a.tickets[tmpID]
	delete(a.tickets, tmpID)
	a.mu.Unlock()
	if !ok {
		return
	}
	t.id, t.err = id, err
	close(t.done)
}

// Pending returns the number of unresolved tickets.
func (a *Arena) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tickets)
}

func (t *Ticket) TmpID() uint32 {
	return t.tmpID
}

// ID returns the resolved id, or false while the ticket is pending or failed.
func (t *Ticket) ID() (uint32, bool) {
	select {
	case <-t.done:
		return t.id, t.err == nil
	default:
		return 0, false
	}
}

// Wait blocks until the ticket is resolved or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (uint32, error) {
	select {
	case <-t.done:
		return t.id, errors.Trace(t.err)
	case <-ctx.Done():
		return 0, errors.Trace(ctx.Err())
	}
}

// Ref is a node reference that is either an id or a pending ticket.
type Ref struct {
	id     uint32
	ticket *Ticket
}

func Resolved(id uint32) Ref {
	return Ref{id: id}
}

func PendingRef(t *Ticket) Ref {
	return Ref{ticket: t}
}

// ID returns the referenced id, or false when the ticket is still pending.
func (r Ref) ID() (uint32, bool) {
	if r.ticket == nil {
		return r.id, r.id != 0
	}
	return r.ticket.ID()
}

// Ticket returns the ticket of a pending reference, or nil.
func (r Ref) Ticket() *Ticket {
	return r.ticket
}

// Tickets collects the unresolved tickets referenced by values, including
// those nested in reference objects and lists.
func Tickets(values map[string]interface{}) []*Ticket {
	var out []*Ticket
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch x := v.(type) {
		case *Ticket:
			if _, ok := x.ID(); !ok {
				out = append(out, x)
			}
		case Ref:
			if x.ticket != nil {
				walk(x.ticket)
			}
		case []Ref:
			for _, r := range x {
				walk(r)
			}
		case map[string]interface{}:
			for _, e := range x {
				walk(e)
			}
		case []interface{}:
			for _, e := range x {
				walk(e)
			}
		}
	}
	walk(values)
	return out
}

// refID resolves a reference value to a node id.
func refID(fd *schema.FieldDescriptor, v interface{}) (uint32, *ModifyError) {
	switch x := v.(type) {
	case Ref:
		if id, ok := x.ID(); ok {
			return id, nil
		}
		if x.ticket != nil {
			return 0, newModifyError(fd, v, ErrUnresolved.Error())
		}
		return 0, newModifyError(fd, v, "reference id must be positive")
	case *Ticket:
		if id, ok := x.ID(); ok {
			return id, nil
		}
		return 0, newModifyError(fd, v, ErrUnresolved.Error())
	case map[string]interface{}:
		id, ok := x["id"]
		if !ok {
			return 0, newModifyError(fd, v, "reference object needs an id")
		}
		return refID(fd, id)
	}
	id, ok := schema.ToUint32(v)
	if !ok || id == 0 {
		return 0, newModifyError(fd, v, "reference id must be a positive 32 bit integer")
	}
	return id, nil
}
