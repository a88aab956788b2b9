package nameparse

import "strings"

// KeyOrigin marks whether a matching key came from a name's primary form or
// from a detected nickname.
type KeyOrigin int

const (
	OriginPrimary KeyOrigin = iota
	OriginNickname
)

// Key is one (normalized last, normalized first-token) matching pair.
type Key struct {
	Last   string
	First  string
	Origin KeyOrigin
}

// Keys generates the full set of matching keys for a parsed name: the
// primary (full first name) key always comes first (property P7), then one
// key per whitespace-delimited first-name token when there are two or more
// tokens, then one key per nickname.
func Keys(n Name) []Key {
	last := Normalize(n.Last)
	if last == "" {
		return nil
	}

	keys := []Key{{Last: last, First: Normalize(n.First), Origin: OriginPrimary}}

	tokens := strings.Fields(n.First)
	if len(tokens) >= 2 {
		seen := map[string]bool{keys[0].First: true}
		for _, tok := range tokens {
			nf := Normalize(tok)
			if nf == "" || seen[nf] {
				continue
			}
			seen[nf] = true
			keys = append(keys, Key{Last: last, First: nf, Origin: OriginPrimary})
		}
	}

	if n.Nickname != "" {
		nf := Normalize(n.Nickname)
		if nf != "" {
			keys = append(keys, Key{Last: last, First: nf, Origin: OriginNickname})
		}
	}
	return keys
}
