// Package symbols implements symbol reference resolution for address
// expressions: module-qualified candidate selection over a backend symbol
// search, with an LRU cache in front of it.
package symbols

import (
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-memview/memview/pkg/logflags"
)

// Candidate is one entry of a ranked symbol search result.
type Candidate struct {
	// Name is the bare symbol name, without module qualifier.
	Name string
	// Module is the name of the module the symbol belongs to, possibly
	// carrying an .exe/.dll/.sys extension.
	Module string
	// Addr is the symbol's virtual address.
	Addr uint64
}

// DisplayName returns the module!name form of the candidate.
func (c Candidate) DisplayName() string {
	if c.Module == "" {
		return c.Name
	}
	return TrimModuleExt(c.Module) + "!" + c.Name
}

// SearchFunc performs a ranked symbol search against the backend. It may
// suspend on network or IPC work.
type SearchFunc func(pattern string, limit int) ([]Candidate, error)

// maxCandidates bounds how many candidates one resolution fetches.
const maxCandidates = 30

const cacheSize = 128

// Resolver resolves module!name references against a backend search,
// caching successful lookups until the module list changes.
type Resolver struct {
	search SearchFunc
	cache  *lru.Cache
	log    logflags.Logger
}

// NewResolver returns a Resolver querying search.
func NewResolver(search SearchFunc) *Resolver {
	cache, _ := lru.New(cacheSize)
	return &Resolver{
		search: search,
		cache:  cache,
		log:    logflags.SymbolsLogger(),
	}
}

// Invalidate drops all cached resolutions. The session layer calls it when
// the debuggee's module list changes, since old addresses may no longer be
// valid.
func (r *Resolver) Invalidate() {
	r.cache.Purge()
}

// Resolve maps a symbol reference, optionally qualified as module!name, to
// its address. Lookup failures and "not found" both report false.
func (r *Resolver) Resolve(ref string) (uint64, bool) {
	if ref == "" {
		return 0, false
	}
	if addr, ok := r.cache.Get(ref); ok {
		return addr.(uint64), true
	}

	module, name := SplitQualified(ref)
	cands, err := r.search(name, maxCandidates)
	if err != nil {
		r.log.WithError(err).Debugf("symbol search for %q failed", name)
		return 0, false
	}
	c, ok := pick(cands, module, name)
	if !ok {
		r.log.Debugf("no candidate for %q", ref)
		return 0, false
	}
	r.log.Debugf("%q -> %s @ %#x", ref, c.DisplayName(), c.Addr)
	r.cache.Add(ref, c.Addr)
	return c.Addr, true
}

// pick applies the selection policy to the ranked candidate list: filter by
// module when the reference was qualified, prefer an exact case-insensitive
// name match, fall back to the first ranked candidate, and finally fall back
// to an unqualified exact-name match if the module filter eliminated
// everything.
func pick(cands []Candidate, module, name string) (Candidate, bool) {
	pool := cands
	if module != "" {
		pool = nil
		for _, c := range cands {
			if ModuleMatches(c.Module, module) {
				pool = append(pool, c)
			}
		}
	}
	if c, ok := exactName(pool, name); ok {
		return c, true
	}
	if len(pool) > 0 {
		return pool[0], true
	}
	if module != "" {
		return exactName(cands, name)
	}
	return Candidate{}, false
}

func exactName(cands []Candidate, name string) (Candidate, bool) {
	for _, c := range cands {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Candidate{}, false
}

// SplitQualified splits a module!name reference. An unqualified reference
// yields an empty module.
func SplitQualified(ref string) (module, name string) {
	if i := strings.Index(ref, "!"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}

// TrimModuleExt strips a trailing .exe/.dll/.sys from a module name.
func TrimModuleExt(module string) string {
	lower := strings.ToLower(module)
	for _, ext := range []string{".exe", ".dll", ".sys"} {
		if strings.HasSuffix(lower, ext) {
			return module[:len(module)-len(ext)]
		}
	}
	return module
}

// ModuleMatches reports whether a candidate's module satisfies the module
// filter of a qualified reference. The comparison is case-insensitive and
// tolerates a trailing .exe/.dll/.sys on either side.
func ModuleMatches(candidate, filter string) bool {
	return strings.EqualFold(TrimModuleExt(candidate), TrimModuleExt(filter))
}
