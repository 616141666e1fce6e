package secret

import "context"

// Ref points at a secret held outside the config file, written as ${type:name}.
type Ref struct {
	Type     string
	Name     string
	Original string
}

// Provider resolves and manages secrets of one reference type.
type Provider interface {
	CanResolve(secretType string) bool
	Resolve(ctx context.Context, ref Ref) (string, error)
	Store(ctx context.Context, ref Ref, value string) error
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context) ([]Ref, error)
	IsAvailable() bool
}
