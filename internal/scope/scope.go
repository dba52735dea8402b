// Package scope defines the fixed catalog of capability strings tokens can
// carry and the two validation modes used across the service: strict
// validation for client registration and permissive filtering for
// authorization requests. The asymmetry is deliberate; filtering always
// returns the granted set so callers learn exactly what they received.
package scope

import (
	"sort"
	"strings"
)

const (
	DocumentsRead  = "documents:read"
	DocumentsWrite = "documents:write"
	ProfileRead    = "profile:read"
	EphemeralRun   = "ephemeral:process"
	CollabRead     = "collaboration:read"
	CollabWrite    = "collaboration:write"
)

var catalog = map[string]struct{}{
	DocumentsRead:  {},
	DocumentsWrite: {},
	ProfileRead:    {},
	EphemeralRun:   {},
	CollabRead:     {},
	CollabWrite:    {},
}

// Default is granted when an authorization request names no scopes at all.
var Default = []string{DocumentsRead, ProfileRead}

// All returns the catalog in stable order.
func All() []string {
	out := make([]string, 0, len(catalog))
	for s := range catalog {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether a single scope string is in the catalog.
func Supported(s string) bool {
	_, ok := catalog[s]
	return ok
}

// Validate returns true only if every requested scope is supported. Used by
// client registration, which rejects unknown scopes outright.
func Validate(scopes []string) bool {
	for _, s := range scopes {
		if !Supported(s) {
			return false
		}
	}
	return true
}

// Grant is the outcome of filtering an authorization request against the
// catalog: the scopes actually granted plus whatever was silently dropped.
type Grant struct {
	Granted []string
	Dropped []string
}

// Filter splits requested scopes into supported and unsupported sets,
// deduplicating as it goes. An empty request yields the default grant.
func Filter(scopes []string) Grant {
	if len(scopes) == 0 {
		return Grant{Granted: append([]string(nil), Default...)}
	}
	var g Grant
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if Supported(s) {
			g.Granted = append(g.Granted, s)
		} else {
			g.Dropped = append(g.Dropped, s)
		}
	}
	if len(g.Granted) == 0 {
		g.Granted = append([]string(nil), Default...)
	}
	return g
}

// Parse splits a space-delimited scope parameter into its components.
func Parse(raw string) []string {
	return strings.Fields(raw)
}

// Join renders a scope set as the space-delimited wire form.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Contains reports whether the granted set includes the required scope.
func Contains(granted []string, required string) bool {
	for _, s := range granted {
		if s == required {
			return true
		}
	}
	return false
}
