// Package policy holds the pluggable rules applied before a name joins a list.
package policy

import "context"

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Reason is recorded in the server log; it is never sent to clients.
	Reason string
}

// AdmissionPolicy decides whether a name may join a list.
// Lists are zero-based here, like everywhere below the protocol layer.
type AdmissionPolicy interface {
	Admit(ctx context.Context, list int, name string) (Decision, error)
}

// AdmissionFunc adapts a plain function to AdmissionPolicy.
type AdmissionFunc func(ctx context.Context, list int, name string) (Decision, error)

// Admit calls f.
func (f AdmissionFunc) Admit(ctx context.Context, list int, name string) (Decision, error) {
	return f(ctx, list, name)
}

// NoopAdmission aceita sempre.
type NoopAdmission struct{}

func (NoopAdmission) Admit(context.Context, int, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
