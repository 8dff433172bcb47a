package service

import "github.com/BrandonDHaskell/Portunus/door/internal/wiegand"

// AccessPolicy is the allow-list snapshot loaded at startup.  Keys are the
// decimal facility code followed by the decimal card code; matching is exact
// with no case folding or leading-zero normalisation.
type AccessPolicy struct {
	AllowedKeys map[string]struct{}
}

func NewAccessPolicy(keys []string) AccessPolicy {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return AccessPolicy{AllowedKeys: allowed}
}

// Permits reports whether cred's key is on the allow-list.
func (p AccessPolicy) Permits(cred wiegand.Credential) bool {
	_, ok := p.AllowedKeys[cred.Key()]
	return ok
}

func (p AccessPolicy) Size() int {
	return len(p.AllowedKeys)
}
