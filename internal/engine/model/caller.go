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

package model

import (
	"fmt"
	"strings"
)

// Scope is the identity class of a caller.
type Scope string

const (
	ScopeAnonymous Scope = "anonymous"
	ScopeUser      Scope = "user"
	ScopeAdmin     Scope = "admin"
)

// Caller is the identity a request runs as, as resolved by the session provider.
type Caller struct {
	Scope Scope
	Id    string
}

func Anonymous() Caller             { return Caller{Scope: ScopeAnonymous} }
func UserCaller(id string) Caller  { return Caller{Scope: ScopeUser, Id: id} }
func AdminCaller(id string) Caller { return Caller{Scope: ScopeAdmin, Id: id} }

func (c Caller) IsAdmin() bool { return c.Scope == ScopeAdmin }
func (c Caller) IsUser() bool  { return c.Scope == ScopeUser && c.Id != "" }

// IsUserId reports whether the caller is the user with the given id.
func (c Caller) IsUserId(id string) bool { return c.IsUser() && c.Id == id }

func (c Caller) String() string {
	if c.Scope == ScopeAnonymous || c.Scope == "" {
		return string(ScopeAnonymous)
	}
	return string(c.Scope) + ":" + c.Id
}

// ParseCaller parses "anonymous", "user:<id>" or "admin:<id>".
func ParseCaller(s string) (Caller, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(ScopeAnonymous) {
		return Anonymous(), nil
	}
	scope, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Caller{}, fmt.Errorf("invalid caller %q: want anonymous, user:<id> or admin:<id>", s)
	}
	switch Scope(scope) {
	case ScopeUser:
		return UserCaller(id), nil
	case ScopeAdmin:
		return AdminCaller(id), nil
	}
	return Caller{}, fmt.Errorf("invalid caller scope %q", scope)
}
