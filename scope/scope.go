// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scope tracks which span is active in a logical execution context.
//
// A Manager is a stack of Scopes. Activating a span pushes a scope and makes
// it the active one; closing a scope removes it from wherever it sits in the
// stack, so scopes may be closed out of order.
//
// A Manager belongs to one logical execution context (typically one request)
// and travels in a context.Context:
//
//	ctx = scope.WithManager(ctx, scope.NewManager())
//	m, _ := scope.ManagerFromContext(ctx)
//	s := m.Activate(rec, true)
//	defer s.Close()
package scope

import (
	"context"
	"slices"
	"sync"

	"rivaas.dev/tracer/span"
)

// Scope is an activation record for a span.
type Scope struct {
	span          *span.Record
	finishOnClose bool
	manager       *Manager
}

// Span returns the scope's span.
func (s *Scope) Span() *span.Record {
	return s.span
}

// FinishOnClose reports whether Close finishes the span.
func (s *Scope) FinishOnClose() bool {
	return s.finishOnClose
}

// Close finishes the span when the scope was activated with finishOnClose,
// then deactivates the scope. Closing twice is harmless.
func (s *Scope) Close() {
	if s.finishOnClose {
		s.span.Finish()
	}
	s.manager.Deactivate(s)
}

// Manager is a stack of scopes. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	scopes []*Scope
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Activate pushes a scope for rec and makes it active.
func (m *Manager) Activate(rec *span.Record, finishOnClose bool) *Scope {
	s := &Scope{span: rec, finishOnClose: finishOnClose, manager: m}

	m.mu.Lock()
	m.scopes = append(m.scopes, s)
	m.mu.Unlock()

	return s
}

// Active returns the top of the stack, or nil when empty.
func (m *Manager) Active() *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.scopes) == 0 {
		return nil
	}

	return m.scopes[len(m.scopes)-1]
}

// ActiveSpan returns the span of the active scope, or nil.
func (m *Manager) ActiveSpan() *span.Record {
	if s := m.Active(); s != nil {
		return s.span
	}

	return nil
}

// Deactivate removes s from the stack wherever it is. Scopes above it stay
// in place. Removing a scope that is not on the stack does nothing.
func (m *Manager) Deactivate(s *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.scopes) - 1; i >= 0; i-- {
		if m.scopes[i] == s {
			m.scopes = slices.Delete(m.scopes, i, i+1)
			return
		}
	}
}

// Len returns the number of active scopes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.scopes)
}

// Close closes every scope from the top down.
func (m *Manager) Close() {
	for {
		s := m.Active()
		if s == nil {
			return
		}
		s.Close()
	}
}

type managerKey struct{}

// WithManager returns a copy of ctx carrying m.
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// ManagerFromContext returns the Manager carried by ctx.
func ManagerFromContext(ctx context.Context) (*Manager, bool) {
	m, ok := ctx.Value(managerKey{}).(*Manager)

	return m, ok && m != nil
}
