package oauth

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	stateIssuer = "devbridge"

	maxOutstandingStates = 10000
)

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateStore issues signed OAuth state tokens and accepts each one once.
// The JWT carries provider and expiry; the nonce map only enforces single
// use, so a restart invalidates outstanding logins.
type StateStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	max    int

	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewStateStore signs with secret, or with 32 random bytes when it is empty.
func NewStateStore(secret string, ttl time.Duration) (*StateStore, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
	}
	return &StateStore{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
		max:    maxOutstandingStates,
		nonces: make(map[string]time.Time),
	}, nil
}

// Issue returns a state token bound to provider. It fails with
// ErrTooManyStates while the unexpired outstanding tokens fill the table.
func (s *StateStore) Issue(provider string) (string, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if len(s.nonces) >= s.max {
		return "", ErrTooManyStates
	}

	nonce := uuid.NewString()
	claims := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	s.nonces[nonce] = now.Add(s.ttl)
	return token, nil
}

// Verify checks signature, expiry and provider of token without touching
// its nonce. A token that passed Consume still verifies until it expires.
func (s *StateStore) Verify(token, provider string) error {
	_, err := s.parse(token, provider)
	return err
}

// Consume validates token for provider and burns its nonce.
func (s *StateStore) Consume(token, provider string) error {
	claims, err := s.parse(token, provider)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[claims.ID]; !ok {
		return fmt.Errorf("%w: already used", ErrInvalidState)
	}
	delete(s.nonces, claims.ID)
	return nil
}

// Outstanding returns the number of issued, unconsumed nonces.
func (s *StateStore) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

func (s *StateStore) parse(token, provider string) (*stateClaims, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Provider != provider {
		return nil, fmt.Errorf("%w: issued for %q", ErrInvalidState, claims.Provider)
	}
	return &claims, nil
}

func (s *StateStore) sweepLocked(now time.Time) {
	for n, exp := range s.nonces {
		if now.After(exp) {
			delete(s.nonces, n)
		}
	}
}
