package tokens

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey is one entry of the key ring. Alg is a JWT algorithm name from
// the HMAC family (HS256, HS384, HS512); Secret is the raw HMAC key.
type SigningKey struct {
	KID    string
	Alg    string
	Secret []byte
}

func (k SigningKey) method() (jwt.SigningMethod, error) {
	m := jwt.GetSigningMethod(k.Alg)
	if m == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", k.Alg)
	}
	return m, nil
}

// KeyRing is the process-wide map from key ID to key material. It is
// read-mostly: validation takes the read lock, rotation inserts under the
// write lock. Rotation only ever adds keys; a key that may still appear in an
// unexpired access token is never removed.
type KeyRing struct {
	mu      sync.RWMutex
	keys    map[string]SigningKey
	current string
}

// NewKeyRing creates a ring holding k as its current signing key.
func NewKeyRing(k SigningKey) *KeyRing {
	return &KeyRing{
		keys:    map[string]SigningKey{k.KID: k},
		current: k.KID,
	}
}

// Add inserts a key into the ring without changing the current key.
func (r *KeyRing) Add(k SigningKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.KID] = k
}

// SetCurrent makes a previously added key the one used for signing.
func (r *KeyRing) SetCurrent(kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[kid]; !ok {
		return fmt.Errorf("key %q not in ring", kid)
	}
	r.current = kid
	return nil
}

// Rotate adds k and makes it current in one step.
func (r *KeyRing) Rotate(k SigningKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[k.KID] = k
	r.current = k.KID
}

// Current returns the key used for signing new tokens.
func (r *KeyRing) Current() SigningKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[r.current]
}

// Get looks up a key by its ID.
func (r *KeyRing) Get(kid string) (SigningKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[kid]
	return k, ok
}
