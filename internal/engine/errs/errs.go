// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the typed failures returned by the engine.
// None of them are retryable.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-arcade/guild/internal/engine/model"
)

type Code string

const (
	CodePermissionDenied Code = "PermissionDenied"
	CodeValidation       Code = "ValidationError"
	CodeInvariant        Code = "InvariantViolation"
	CodeRegistration     Code = "RegistrationInvalid"
	CodeNotFound         Code = "NotFound"
	CodeRecursionLimit   Code = "RecursionLimitExceeded"
)

// Reason subdivides PermissionDenied.
type Reason string

const (
	ReasonNotVisible Reason = "not_visible"
	ReasonForbidden  Reason = "forbidden"
)

// Names of the cross-record rules reported in Error.Invariant.
const (
	InvariantUniqueEmail       = "unique_email"
	InvariantOwnerRetention    = "owner_retention"
	InvariantTeamNotEmpty      = "team_not_empty"
	InvariantParentExists      = "part_of_exists"
	InvariantParentAcyclic     = "part_of_acyclic"
	InvariantTournamentExists  = "tournament_exists"
	InvariantTournamentAcyclic = "tournament_acyclic"
	InvariantOrganiserExists   = "organiser_exists"
	InvariantEndpointExists    = "endpoint_exists"
	InvariantHasChildren       = "organisation_has_children"
	InvariantHasEvents         = "organisation_has_events"
	InvariantDuplicateEdge     = "duplicate_edge"
	InvariantInviteRequired    = "invite_required"
	InvariantRegistration      = "registration_bounds"
)

// Error is the structured failure surfaced to callers. Field or Invariant
// names the offending part of the request.
type Error struct {
	Code      Code
	Reason    Reason
	Kind      model.Kind
	Id        string
	Field     string
	Invariant string
	Message   string
	cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Kind != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Kind))
		if e.Id != "" {
			b.WriteString(" " + e.Id)
		}
	}
	if e.Field != "" {
		b.WriteString(" field=" + e.Field)
	}
	if e.Invariant != "" {
		b.WriteString(" invariant=" + e.Invariant)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on Code and, when the target sets one, on Reason.
// A not-visible denial also matches ErrNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return t.Code == CodeNotFound && e.Code == CodePermissionDenied && e.Reason == ReasonNotVisible
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

var (
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrNotVisible       = &Error{Code: CodePermissionDenied, Reason: ReasonNotVisible}
	ErrForbidden        = &Error{Code: CodePermissionDenied, Reason: ReasonForbidden}
	ErrValidation       = &Error{Code: CodeValidation}
	ErrInvariant        = &Error{Code: CodeInvariant}
	ErrRegistration     = &Error{Code: CodeRegistration}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrRecursionLimit   = &Error{Code: CodeRecursionLimit}
)

func notFoundMessage(kind model.Kind, id string) string {
	return fmt.Sprintf("%s %s not found", kind, id)
}

func NotFound(kind model.Kind, id string) *Error {
	return &Error{Code: CodeNotFound, Kind: kind, Id: id, Message: notFoundMessage(kind, id)}
}

// NotVisible denies access to a record the caller may not see. The message
// is the same as NotFound so existence does not leak.
func NotVisible(kind model.Kind, id string) *Error {
	return &Error{Code: CodePermissionDenied, Reason: ReasonNotVisible, Kind: kind, Id: id, Message: notFoundMessage(kind, id)}
}

func Forbidden(kind model.Kind, id, op, field string) *Error {
	msg := fmt.Sprintf("%s on %s is not permitted", op, kind)
	if field != "" {
		msg = fmt.Sprintf("%s of field %s on %s is not permitted", op, field, kind)
	}
	return &Error{Code: CodePermissionDenied, Reason: ReasonForbidden, Kind: kind, Id: id, Field: field, Message: msg}
}

func Validation(kind model.Kind, id, field, msg string) *Error {
	return &Error{Code: CodeValidation, Kind: kind, Id: id, Field: field, Message: msg}
}

func Invariant(kind model.Kind, id, invariant, msg string) *Error {
	return &Error{Code: CodeInvariant, Kind: kind, Id: id, Invariant: invariant, Message: msg}
}

func Registration(id, field, msg string) *Error {
	return &Error{Code: CodeRegistration, Kind: model.KindAttends, Id: id, Field: field, Invariant: InvariantRegistration, Message: msg}
}

func RecursionLimit(kind model.Kind, id, field string, depth int) *Error {
	return &Error{
		Code:    CodeRecursionLimit,
		Kind:    kind,
		Id:      id,
		Field:   field,
		Message: fmt.Sprintf("%s chain exceeds depth %d or loops", field, depth),
	}
}

// As returns the engine error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the engine error in err's chain, or "internal".
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := As(err); ok {
		return string(e.Code)
	}
	return "internal"
}
