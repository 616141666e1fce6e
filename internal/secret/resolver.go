package secret

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Resolver dispatches references to the provider registered for their type.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver returns a resolver with the env and keyring providers registered.
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.RegisterProvider(TypeEnv, NewEnvProvider())
	r.RegisterProvider(TypeKeyring, NewKeyringProvider())
	return r
}

// RegisterProvider adds or replaces the provider for secretType.
func (r *Resolver) RegisterProvider(secretType string, p Provider) {
	r.providers[secretType] = p
}

func (r *Resolver) provider(secretType string) (Provider, error) {
	p, ok := r.providers[secretType]
	if !ok {
		return nil, fmt.Errorf("no provider for secret type: %s", secretType)
	}
	if !p.CanResolve(secretType) {
		return nil, fmt.Errorf("provider cannot resolve secret type: %s", secretType)
	}
	if !p.IsAvailable() {
		return nil, fmt.Errorf("provider for %s is not available on this system", secretType)
	}
	return p, nil
}

// Resolve returns the value behind ref.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	p, err := r.provider(ref.Type)
	if err != nil {
		return "", err
	}
	return p.Resolve(ctx, ref)
}

// Store writes value for ref.
func (r *Resolver) Store(ctx context.Context, ref Ref, value string) error {
	p, err := r.provider(ref.Type)
	if err != nil {
		return err
	}
	return p.Store(ctx, ref, value)
}

// Delete removes ref from its provider.
func (r *Resolver) Delete(ctx context.Context, ref Ref) error {
	p, err := r.provider(ref.Type)
	if err != nil {
		return err
	}
	return p.Delete(ctx, ref)
}

// ListAll collects references from every available provider. Providers that
// fail to list are skipped.
func (r *Resolver) ListAll(ctx context.Context) []Ref {
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)

	var all []Ref
	for _, t := range types {
		p := r.providers[t]
		if !p.IsAvailable() {
			continue
		}
		refs, err := p.List(ctx)
		if err != nil {
			continue
		}
		all = append(all, refs...)
	}
	return all
}

// Expand replaces every reference inside input with its resolved value.
func (r *Resolver) Expand(ctx context.Context, input string) (string, error) {
	if !IsRef(input) {
		return input, nil
	}
	out := input
	for _, ref := range FindRefs(input) {
		value, err := r.Resolve(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("failed to resolve secret %s: %w", ref.Original, err)
		}
		out = strings.ReplaceAll(out, ref.Original, value)
	}
	return out, nil
}

// ExpandAll expands each target string in place. It stops at the first failure.
func (r *Resolver) ExpandAll(ctx context.Context, targets ...*string) error {
	for _, t := range targets {
		if t == nil || *t == "" {
			continue
		}
		v, err := r.Expand(ctx, *t)
		if err != nil {
			return err
		}
		*t = v
	}
	return nil
}
