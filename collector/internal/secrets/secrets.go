// Package secrets resolves credential references from collector config.
//
// Config values for source credentials accept three forms:
//
//	literal            used as-is
//	env://NAME         read from the environment
//	op://vault/item/field  fetched from a 1Password Connect server
//
// The op:// form requires OP_CONNECT_HOST and OP_CONNECT_TOKEN in the
// environment. Nothing here talks to the managed endpoints themselves; this
// is purely config-side resolution.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/1Password/connect-sdk-go/connect"
)

const (
	envPrefix = "env://"
	opPrefix  = "op://"
)

// Resolver resolves credential references. The zero value is not usable; use
// NewResolver.
type Resolver struct {
	mu sync.Mutex
	// Connect client, created lazily on the first op:// reference so runs
	// without 1Password references never need the Connect env vars.
	op connect.Client
}

// NewResolver returns a Resolver reading from the process environment.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve expands a single reference. Literal values pass through unchanged,
// including the empty string.
func (r *Resolver) Resolve(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("credential reference %s: environment variable %s not set", ref, name)
		}
		return value, nil

	case strings.HasPrefix(ref, opPrefix):
		return r.resolveConnect(ref)

	default:
		return ref, nil
	}
}

// resolveConnect fetches op://vault/item/field through 1Password Connect.
func (r *Resolver) resolveConnect(ref string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(ref, opPrefix), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("credential reference %s: want op://vault/item/field", ref)
	}
	vault, title, field := parts[0], parts[1], parts[2]

	client, err := r.connectClient()
	if err != nil {
		return "", fmt.Errorf("credential reference %s: %w", ref, err)
	}

	item, err := client.GetItemByTitle(title, vault)
	if err != nil {
		return "", fmt.Errorf("credential reference %s: fetching item: %w", ref, err)
	}
	for _, f := range item.Fields {
		if strings.EqualFold(f.Label, field) {
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("credential reference %s: item has no field %q", ref, field)
}

func (r *Resolver) connectClient() (connect.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.op != nil {
		return r.op, nil
	}
	client, err := connect.NewClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("1Password Connect not configured: %w", err)
	}
	r.op = client
	return client, nil
}
