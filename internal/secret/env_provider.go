package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const TypeEnv = "env"

var errReadOnlyProvider = errors.New("provider is read-only")

// EnvProvider reads secrets from process environment variables.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) CanResolve(secretType string) bool { return secretType == TypeEnv }

func (p *EnvProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	if !p.CanResolve(ref.Type) {
		return "", fmt.Errorf("env provider cannot resolve secret type: %s", ref.Type)
	}
	value, ok := p.lookup(ref.Name)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %s not found or empty", ref.Name)
	}
	return value, nil
}

func (p *EnvProvider) Store(context.Context, Ref, string) error {
	return fmt.Errorf("env: store: %w", errReadOnlyProvider)
}

func (p *EnvProvider) Delete(context.Context, Ref) error {
	return fmt.Errorf("env: delete: %w", errReadOnlyProvider)
}

// List is empty: environment variables are not enumerated as secrets.
func (p *EnvProvider) List(context.Context) ([]Ref, error) { return nil, nil }

func (p *EnvProvider) IsAvailable() bool { return true }
