// Package privacy replaces real talent names with opaque pseudonyms before
// text leaves the process, and restores them in responses coming back.
package privacy

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

const (
	pseudonymPrefix = "T_"
	tokenLength     = 5
	tokenAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Mapping is a bijection between real names and generated pseudonyms.
type Mapping struct {
	nameToPseudo map[string]string
	pseudoToName map[string]string

	// names sorted longest first so "Alice Chen" is replaced before "Alice".
	orderedNames   []string
	orderedPseudos []string
}

// NewMapping builds a fresh mapping for the given names. Blank and duplicate
// names are ignored. Pseudonyms are random and unique within the mapping.
func NewMapping(names []string) (*Mapping, error) {
	m := &Mapping{
		nameToPseudo: map[string]string{},
		pseudoToName: map[string]string{},
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := m.nameToPseudo[name]; ok {
			continue
		}
		pseudo, err := m.newToken()
		if err != nil {
			return nil, err
		}
		m.nameToPseudo[name] = pseudo
		m.pseudoToName[pseudo] = name
		m.orderedNames = append(m.orderedNames, name)
		m.orderedPseudos = append(m.orderedPseudos, pseudo)
	}
	sort.Slice(m.orderedNames, func(i, j int) bool {
		return len(m.orderedNames[i]) > len(m.orderedNames[j])
	})
	return m, nil
}

func (m *Mapping) newToken() (string, error) {
	for {
		buf := make([]byte, tokenLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenAlphabet))))
			if err != nil {
				return "", fmt.Errorf("failed to generate pseudonym: %w", err)
			}
			buf[i] = tokenAlphabet[n.Int64()]
		}
		pseudo := pseudonymPrefix + string(buf)
		if _, taken := m.pseudoToName[pseudo]; !taken {
			return pseudo, nil
		}
	}
}

// Len returns the number of mapped names.
func (m *Mapping) Len() int {
	return len(m.nameToPseudo)
}

// NameToPseudo looks up the pseudonym for a real name.
func (m *Mapping) NameToPseudo(name string) (string, bool) {
	p, ok := m.nameToPseudo[name]
	return p, ok
}

// PseudoToName exposes the reverse mapping for response payloads.
func (m *Mapping) PseudoToName() map[string]string {
	out := make(map[string]string, len(m.pseudoToName))
	for k, v := range m.pseudoToName {
		out[k] = v
	}
	return out
}

// MaskText replaces every mapped name in s with its pseudonym, longest
// name first.
func (m *Mapping) MaskText(s string) string {
	for _, name := range m.orderedNames {
		s = strings.ReplaceAll(s, name, m.nameToPseudo[name])
	}
	return s
}

// Mask walks an arbitrary JSON-shaped value and masks every string in it.
func (m *Mapping) Mask(v any) any {
	switch val := v.(type) {
	case string:
		return m.MaskText(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.Mask(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = m.Mask(item)
		}
		return out
	default:
		return v
	}
}

// Restore replaces every pseudonym in s with its real name. Pseudonyms are
// fixed-length so replacement order does not matter, but longer-first keeps
// the symmetry with MaskText.
func (m *Mapping) Restore(s string) string {
	for _, pseudo := range m.orderedPseudos {
		s = strings.ReplaceAll(s, pseudo, m.pseudoToName[pseudo])
	}
	return s
}
