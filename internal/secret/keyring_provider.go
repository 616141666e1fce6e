package secret

import (
	"context"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the keyring service every devbridge secret is filed under.
	ServiceName = "devbridge"
	TypeKeyring = "keyring"

	// registryKey holds a newline separated index of stored names, since
	// go-keyring cannot enumerate entries.
	registryKey = "_devbridge_secret_registry"
	probeKey    = "_devbridge_probe"
)

// KeyringProvider stores secrets in the OS keyring (Keychain, Secret Service, WinCred).
type KeyringProvider struct {
	service string
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{service: ServiceName}
}

func (p *KeyringProvider) CanResolve(secretType string) bool { return secretType == TypeKeyring }

func (p *KeyringProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	value, err := keyring.Get(p.service, ref.Name)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s from keyring: %w", ref.Name, err)
	}
	return value, nil
}

func (p *KeyringProvider) Store(_ context.Context, ref Ref, value string) error {
	if err := keyring.Set(p.service, ref.Name, value); err != nil {
		return fmt.Errorf("failed to store secret %s in keyring: %w", ref.Name, err)
	}
	names := p.names()
	for _, n := range names {
		if n == ref.Name {
			return nil
		}
	}
	return p.saveNames(append(names, ref.Name))
}

func (p *KeyringProvider) Delete(_ context.Context, ref Ref) error {
	if err := keyring.Delete(p.service, ref.Name); err != nil {
		return fmt.Errorf("failed to delete secret %s from keyring: %w", ref.Name, err)
	}
	names := p.names()
	kept := names[:0]
	for _, n := range names {
		if n != ref.Name {
			kept = append(kept, n)
		}
	}
	return p.saveNames(kept)
}

func (p *KeyringProvider) List(context.Context) ([]Ref, error) {
	names := p.names()
	refs := make([]Ref, 0, len(names))
	for _, n := range names {
		refs = append(refs, Ref{Type: TypeKeyring, Name: n, Original: "${keyring:" + n + "}"})
	}
	return refs, nil
}

// IsAvailable probes the keyring with a throwaway entry.
func (p *KeyringProvider) IsAvailable() bool {
	if err := keyring.Set(p.service, probeKey, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(p.service, probeKey)
	return true
}

func (p *KeyringProvider) names() []string {
	raw, err := keyring.Get(p.service, registryKey)
	if err != nil || raw == "" {
		return nil
	}
	var out []string
	for _, n := range strings.Split(raw, "\n") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (p *KeyringProvider) saveNames(names []string) error {
	if err := keyring.Set(p.service, registryKey, strings.Join(names, "\n")); err != nil {
		return fmt.Errorf("failed to update secret registry: %w", err)
	}
	return nil
}
