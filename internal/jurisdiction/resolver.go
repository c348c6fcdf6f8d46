package jurisdiction

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// Info describes the jurisdiction a location falls under. The code is what
// ends up on citations and in local-angle queries.
type Info struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Region string `json:"region"`
}

type datasetEntry struct {
	Code    string   `json:"code"`
	Region  string   `json:"region"`
	Aliases []string `json:"aliases"`
}

// Resolver maps free-text locations ("Lyon", "Greater Manchester") to
// jurisdictions via a local dataset, with an in-memory cache in front and a
// conservative fallback when nothing matches.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]Info
	byKey map[string]Info
}

func NewResolver(datasetPath string) (*Resolver, error) {
	r := &Resolver{
		cache: map[string]Info{},
		byKey: map[string]Info{},
	}

	data, err := os.ReadFile(filepath.Clean(datasetPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No dataset is fine; everything falls through to the fallback.
			return r, nil
		}
		return nil, err
	}

	raw := map[string]datasetEntry{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for name, e := range raw {
		info := Info{
			Name:   strings.TrimSpace(name),
			Code:   strings.ToUpper(strings.TrimSpace(e.Code)),
			Region: strings.TrimSpace(e.Region),
		}
		r.byKey[normalizeKey(name)] = info
		for _, a := range e.Aliases {
			if strings.TrimSpace(a) == "" {
				continue
			}
			r.byKey[normalizeKey(a)] = info
		}
	}
	return r, nil
}

// Resolve never fails: an unknown location yields an Info whose name is the
// cleaned input and whose code is empty.
func (r *Resolver) Resolve(location string) Info {
	key := normalizeKey(location)
	if key == "" {
		return Info{}
	}

	r.mu.RLock()
	if v, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return v
	}
	r.mu.RUnlock()

	info, ok := r.byKey[key]
	if !ok {
		// Try individual tokens so "Lyon, France" still hits "france".
		for _, tok := range strings.Fields(key) {
			if v, tokOK := r.byKey[tok]; tokOK {
				info, ok = v, true
				break
			}
		}
	}
	if !ok {
		info = Info{Name: strings.TrimSpace(location)}
	}

	r.mu.Lock()
	r.cache[key] = info
	r.mu.Unlock()
	return info
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
