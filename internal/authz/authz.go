package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Scope is the closed set of grant levels recognized at the service
// boundary. The identity collaborator hands us opaque strings; they are
// mapped to this enum here and nowhere else.
type Scope string

const (
	// ReadOnly permits read operations only (personnel callers).
	ReadOnly Scope = "read"
	// Admin permits every operation.
	Admin Scope = "*"
)

// Operation identifies a mission service operation for authorization.
type Operation string

const (
	OpGetMission    Operation = "get-mission"
	OpCreateMission Operation = "create-mission"
)

var ErrUnknownScope = errors.New("unknown scope")

// ForbiddenError indicates the caller's scope does not cover the
// requested operation.
type ForbiddenError struct {
	Scope     Scope
	Operation Operation
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("scope %q does not permit %s", e.Scope, e.Operation)
}

var allowed = map[Scope]map[Operation]bool{
	ReadOnly: {
		OpGetMission: true,
	},
	Admin: {
		OpGetMission:    true,
		OpCreateMission: true,
	},
}

// ParseScope maps the external scope claim to the internal enum.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.TrimSpace(s)) {
	case ReadOnly:
		return ReadOnly, nil
	case Admin:
		return Admin, nil
	}
	return "", ErrUnknownScope
}

// Authorize rejects the request before any business logic runs when the
// scope does not cover the operation.
func Authorize(scope Scope, op Operation) error {
	if allowed[scope][op] {
		return nil
	}
	return ForbiddenError{Scope: scope, Operation: op}
}

// Operations returns the operations a scope may invoke, for introspection.
func Operations(scope Scope) []Operation {
	var ops []Operation
	for _, op := range []Operation{OpGetMission, OpCreateMission} {
		if allowed[scope][op] {
			ops = append(ops, op)
		}
	}
	return ops
}
