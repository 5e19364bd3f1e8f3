// Package actions maps FreeMember POST actions to the opaque numeric IDs
// that forms submit in their ACT hidden field.
package actions

import (
	"fmt"
	"strconv"
)

// Action names understood by the controller.
const (
	Login          = "act_login"
	Register       = "act_register"
	UpdateProfile  = "act_update_profile"
	ForgotPassword = "act_forgot_password"
	ResetPassword  = "act_reset_password"
	Logout         = "act_logout"
)

// Action is a registered action.
type Action struct {
	ID     int
	Class  string
	Method string
}

// Registry assigns IDs in registration order, starting at 1.
type Registry struct {
	byName map[string]Action
	byID   map[int]Action
	order  []Action
}

// NewRegistry creates a registry holding the given methods of class.
func NewRegistry(class string, methods ...string) *Registry {
	r := &Registry{
		byName: make(map[string]Action),
		byID:   make(map[int]Action),
	}
	for _, m := range methods {
		r.Register(class, m)
	}
	return r
}

// Default returns the registry of all FreeMember actions.
func Default() *Registry {
	return NewRegistry("Freemember", Login, Register, UpdateProfile, ForgotPassword, ResetPassword, Logout)
}

// Register adds method and returns its ID. Registering twice returns the
// existing ID.
func (r *Registry) Register(class, method string) int {
	if a, ok := r.byName[method]; ok {
		return a.ID
	}
	a := Action{ID: len(r.order) + 1, Class: class, Method: method}
	r.byName[method] = a
	r.byID[a.ID] = a
	r.order = append(r.order, a)
	return a.ID
}

// ID returns the ID of method, or 0 when unknown.
func (r *Registry) ID(method string) int {
	return r.byName[method].ID
}

// Lookup resolves a submitted ACT value.
func (r *Registry) Lookup(act string) (Action, error) {
	id, err := strconv.Atoi(act)
	if err != nil {
		return Action{}, fmt.Errorf("invalid action id %q", act)
	}
	a, ok := r.byID[id]
	if !ok {
		return Action{}, fmt.Errorf("unknown action id %d", id)
	}
	return a, nil
}

// All returns the registered actions in ID order.
func (r *Registry) All() []Action {
	out := make([]Action, len(r.order))
	copy(out, r.order)
	return out
}
