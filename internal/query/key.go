package query

import (
	"fmt"
	"strings"
)

const keySeparator = "|"

// Key identifies a cached query: a resource name plus the parameters that
// shape the request. Two keys with the same string form share one entry.
type Key struct {
	Resource string
	Params   []any
}

// NewKey builds a Key.
func NewKey(resource string, params ...any) Key {
	return Key{Resource: resource, Params: params}
}

// String renders the key as "resource|param|param", e.g. "contacts|recent|5".
func (k Key) String() string {
	if len(k.Params) == 0 {
		return k.Resource
	}
	parts := make([]string, 0, len(k.Params)+1)
	parts = append(parts, k.Resource)
	for _, p := range k.Params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, keySeparator)
}

// matchesPrefix reports whether key falls under prefix. Matching is on whole
// segments: "contacts" matches "contacts|recent|5" but not "contactsx".
func matchesPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	return key == prefix || strings.HasPrefix(key, prefix+keySeparator)
}
