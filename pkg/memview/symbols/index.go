package symbols

import (
	"sort"
	"strings"

	"github.com/derekparker/trie"
)

// Index is an in-process symbol table with ranked prefix search. The
// simulated backend serves resolver queries from it.
type Index struct {
	trie  *trie.Trie
	count int
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{trie: trie.New()}
}

// Add inserts a candidate. Symbols with the same name in different modules
// accumulate under one key.
func (idx *Index) Add(c Candidate) {
	key := strings.ToLower(c.Name)
	var list []Candidate
	if node, ok := idx.trie.Find(key); ok {
		list = node.Meta().([]Candidate)
	}
	idx.trie.Add(key, append(list, c))
	idx.count++
}

// Len returns the number of symbols added.
func (idx *Index) Len() int {
	return idx.count
}

// Search returns up to limit candidates whose name starts with pattern,
// exact matches first, shorter names before longer ones. It satisfies
// SearchFunc.
func (idx *Index) Search(pattern string, limit int) ([]Candidate, error) {
	if pattern == "" || limit <= 0 {
		return nil, nil
	}
	key := strings.ToLower(pattern)
	keys := idx.trie.PrefixSearch(key)
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == key) != (keys[j] == key) {
			return keys[i] == key
		}
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var out []Candidate
	for _, k := range keys {
		node, ok := idx.trie.Find(k)
		if !ok {
			continue
		}
		for _, c := range node.Meta().([]Candidate) {
			out = append(out, c)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
