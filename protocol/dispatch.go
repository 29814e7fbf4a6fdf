package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raniellyferreira/memberlists/storage"
	"github.com/raniellyferreira/memberlists/storage/policy"
)

// Outcome classifies how a command was resolved
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeNoSuchList     Outcome = "no_such_list"
	OutcomeFull           Outcome = "full"
	OutcomeRejected       Outcome = "rejected"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeStorageError   Outcome = "storage_error"
	OutcomeAdmissionError Outcome = "admission_error"
)

// Result is the response to one command
type Result struct {
	Command Command
	Text    string
	Outcome Outcome
	// Err carries the storage or admission failure behind an error outcome
	Err error
	// Members is the list size after a successful join, -1 otherwise
	Members int
}

// Dispatcher executes commands against a store
type Dispatcher struct {
	store     storage.Storage
	admission policy.AdmissionPolicy
}

// NewDispatcher creates a dispatcher. A nil admission policy admits everyone.
func NewDispatcher(store storage.Storage, admission policy.AdmissionPolicy) *Dispatcher {
	if admission == nil {
		admission = policy.NoopAdmission{}
	}
	return &Dispatcher{
		store:     store,
		admission: admission,
	}
}

// Storage returns the store commands run against
func (d *Dispatcher) Storage() storage.Storage {
	return d.store
}

// Handle parses line and dispatches it
func (d *Dispatcher) Handle(ctx context.Context, line string) Result {
	return d.Dispatch(ctx, ParseCommand(line))
}

// Dispatch executes cmd and builds its response text
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	res := Result{Command: cmd, Members: -1}

	switch cmd.Kind {
	case KindTotals:
		d.totals(&res)
	case KindList:
		d.list(&res)
	case KindJoin:
		d.join(ctx, &res)
	default:
		res.Text = MsgInvalid
		res.Outcome = OutcomeInvalid
	}
	return res
}

func (d *Dispatcher) totals(res *Result) {
	lines := make([]string, 0, d.store.Lists()+1)
	lines = append(lines, Summary(d.store.Lists(), d.store.Capacity()))
	for i := 0; i < d.store.Lists(); i++ {
		n, err := d.store.Count(i)
		if err != nil {
			d.storageFailure(res, i+1, err)
			return
		}
		lines = append(lines, ListCount(i+1, n))
	}
	res.Text = strings.Join(lines, LineTerminator)
	res.Outcome = OutcomeOK
}

func (d *Dispatcher) list(res *Result) {
	n := res.Command.List
	if !d.inRange(n) {
		res.Text = NoSuchList(n)
		res.Outcome = OutcomeNoSuchList
		return
	}
	members, err := d.store.Members(n - 1)
	if err != nil {
		d.storageFailure(res, n, err)
		return
	}
	if len(members) == 0 {
		res.Text = NoMembers(n)
	} else {
		res.Text = strings.Join(members, LineTerminator)
	}
	res.Outcome = OutcomeOK
}

func (d *Dispatcher) join(ctx context.Context, res *Result) {
	n, name := res.Command.List, res.Command.Name
	if !d.inRange(n) {
		res.Text = NoSuchList(n)
		res.Outcome = OutcomeNoSuchList
		return
	}

	decision, err := d.admission.Admit(ctx, n-1, name)
	if err != nil {
		res.Text = MsgInvalid
		res.Outcome = OutcomeAdmissionError
		res.Err = fmt.Errorf("admission for list %d: %w", n, err)
		return
	}
	if !decision.Allowed {
		res.Text = NotAdmitted(name, n)
		res.Outcome = OutcomeRejected
		return
	}

	count, err := d.store.Append(n-1, name)
	switch {
	case err == nil:
		res.Text = Joined(name, n)
		res.Outcome = OutcomeOK
		res.Members = count
	case errors.Is(err, storage.ErrListFull):
		res.Text = ListFull(n)
		res.Outcome = OutcomeFull
	case errors.Is(err, storage.ErrInvalidName):
		res.Text = MsgInvalid
		res.Outcome = OutcomeInvalid
	default:
		d.storageFailure(res, n, err)
	}
}

func (d *Dispatcher) inRange(n int) bool {
	return n >= 1 && n <= d.store.Lists()
}

func (d *Dispatcher) storageFailure(res *Result, n int, err error) {
	res.Text = StorageFailure(n)
	res.Outcome = OutcomeStorageError
	res.Err = err
}
