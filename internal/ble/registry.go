package ble

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// Registry maps characteristic UUIDs to attributes for one session. It is
// built once, eagerly, because enumeration goes over the radio.
type Registry struct {
	attrs map[string]Attribute
}

// NewRegistry enumerates the attributes of a ready link.
func NewRegistry(l *Link) (*Registry, error) {
	if s := l.State(); s != LinkReady {
		return nil, fmt.Errorf("%w: link is %s, not ready", ErrConnectionFailed, s)
	}
	found, err := l.Device().Attributes()
	if err != nil {
		return nil, fmt.Errorf("enumerate attributes: %w", err)
	}

	r := &Registry{attrs: make(map[string]Attribute, len(found))}
	for id, a := range found {
		r.attrs[normalizeUUID(id)] = a
	}
	log.Printf("[Link] %s: %d attributes enumerated", l.Device().Address(), len(r.attrs))
	return r, nil
}

// Lookup returns the attribute for id. ok is false when the device does not expose it.
func (r *Registry) Lookup(id string) (Attribute, bool) {
	a, ok := r.attrs[normalizeUUID(id)]
	return a, ok
}

// Require is Lookup for mandatory attributes.
func (r *Registry) Require(id string) (Attribute, error) {
	a, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAttributeAbsent, id)
	}
	return a, nil
}

// Len returns the number of attributes.
func (r *Registry) Len() int { return len(r.attrs) }

// UUIDs returns all identifiers in sorted order.
func (r *Registry) UUIDs() []string {
	ids := make([]string, 0, len(r.attrs))
	for id := range r.attrs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeUUID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
