// Package auth implements the gateway's static API-key to tenant mapping.
package auth

import (
	"fmt"
	"strings"
)

// ErrMissingKey is returned when a request carries no X-API-Key header.
var ErrMissingKey = fmt.Errorf("missing X-API-Key header")

// ErrInvalidKey is returned when the supplied key maps to no tenant.
var ErrInvalidKey = fmt.Errorf("invalid API key")

// Mapper resolves an API key to a tenant identifier.
type Mapper struct {
	keyToTenant map[string]string
}

// New builds a Mapper from an explicit key->tenant map.
func New(keyToTenant map[string]string) *Mapper {
	m := make(map[string]string, len(keyToTenant))
	for k, v := range keyToTenant {
		m[k] = v
	}
	return &Mapper{keyToTenant: m}
}

// ParseAPIKeys parses the API_KEYS environment variable's
// "tenant:key,tenant:key,..." format into a Mapper.
func ParseAPIKeys(spec string) (*Mapper, error) {
	m := make(map[string]string)
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return &Mapper{keyToTenant: m}, nil
	}

	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q: want tenant:key", pair)
		}
		m[parts[1]] = parts[0]
	}
	return &Mapper{keyToTenant: m}, nil
}

// Authenticate resolves apiKey to a tenant ID. An empty apiKey yields
// ErrMissingKey; an unrecognized one yields ErrInvalidKey.
func (m *Mapper) Authenticate(apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingKey
	}
	tenant, ok := m.keyToTenant[apiKey]
	if !ok {
		return "", ErrInvalidKey
	}
	return tenant, nil
}

// ExemptPaths lists the HTTP paths auth does not gate.
var ExemptPaths = map[string]bool{
	"/health":   true,
	"/register": true,
	"/metrics":  true,
}
