// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package cache

import (
	"strings"
	"sync"
)

// AhoCorasick implements the Aho-Corasick multi-pattern matcher. It finds
// all occurrences of the loaded patterns in a text in O(n + m + z) time
// (n = text length, m = total pattern length, z = matches), which keeps the
// word-blacklist filter stage linear in the post text regardless of how
// many blacklisted tokens operators maintain.
//
// Matching is case-insensitive; the filter pipeline feeds it normalized
// lowercase text anyway.
type AhoCorasick struct {
	mu       sync.RWMutex
	root     *acNode
	patterns []string
	built    bool
}

// acNode is one automaton node.
type acNode struct {
	children map[rune]*acNode
	failure  *acNode
	output   []int // indices of patterns ending at this node
}

// Match is one pattern occurrence in a text.
type Match struct {
	Pattern  string
	Position int
}

// NewAhoCorasick creates an empty automaton.
func NewAhoCorasick() *AhoCorasick {
	return &AhoCorasick{root: newACNode()}
}

func newACNode() *acNode {
	return &acNode{children: make(map[rune]*acNode)}
}

// AddPattern adds a pattern. The automaton must be rebuilt with Build
// before searching again.
func (ac *AhoCorasick) AddPattern(pattern string) {
	if pattern == "" {
		return
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.built = false
	ac.patterns = append(ac.patterns, pattern)
}

// AddPatterns adds multiple patterns at once.
func (ac *AhoCorasick) AddPatterns(patterns []string) {
	for _, p := range patterns {
		ac.AddPattern(p)
	}
}

// Build constructs the trie and failure links. Must be called after adding
// patterns and before searching.
func (ac *AhoCorasick) Build() {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.built {
		return
	}

	ac.root = newACNode()
	for i, p := range ac.patterns {
		ac.insert(i, strings.ToLower(p))
	}
	ac.buildFailureLinks()
	ac.built = true
}

func (ac *AhoCorasick) insert(index int, pattern string) {
	node := ac.root
	for _, ch := range pattern {
		if node.children[ch] == nil {
			node.children[ch] = newACNode()
		}
		node = node.children[ch]
	}
	node.output = append(node.output, index)
}

// buildFailureLinks builds failure links breadth-first so every node fails
// to its longest proper suffix present in the trie.
func (ac *AhoCorasick) buildFailureLinks() {
	queue := make([]*acNode, 0)
	for _, child := range ac.root.children {
		child.failure = ac.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}
			if fail == nil {
				child.failure = ac.root
			} else {
				child.failure = fail.children[ch]
				child.output = append(child.output, child.failure.output...)
			}
		}
	}
}

// Search returns all pattern matches in the text.
func (ac *AhoCorasick) Search(text string) []Match {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return nil
	}

	searchText := strings.ToLower(text)
	var matches []Match
	node := ac.root

	for i, ch := range searchText {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = ac.root
			continue
		}
		node = node.children[ch]

		for _, idx := range node.output {
			p := ac.patterns[idx]
			matches = append(matches, Match{Pattern: p, Position: i - len(p) + 1})
		}
	}
	return matches
}

// SearchFirst returns the first match, if any.
func (ac *AhoCorasick) SearchFirst(text string) (Match, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()

	if !ac.built || len(ac.patterns) == 0 {
		return Match{}, false
	}

	searchText := strings.ToLower(text)
	node := ac.root

	for i, ch := range searchText {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = ac.root
			continue
		}
		node = node.children[ch]

		if len(node.output) > 0 {
			p := ac.patterns[node.output[0]]
			return Match{Pattern: p, Position: i - len(p) + 1}, true
		}
	}
	return Match{}, false
}

// Contains reports whether any pattern occurs in the text.
func (ac *AhoCorasick) Contains(text string) bool {
	_, found := ac.SearchFirst(text)
	return found
}

// PatternCount returns the number of loaded patterns.
func (ac *AhoCorasick) PatternCount() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return len(ac.patterns)
}

// Clear removes all patterns and resets the automaton.
func (ac *AhoCorasick) Clear() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.root = newACNode()
	ac.patterns = nil
	ac.built = false
}

// WordMatcher is a prebuilt automaton over a fixed token list, the shape
// the word-blacklist stage consumes.
type WordMatcher struct {
	ac *AhoCorasick
}

// NewWordMatcher builds a matcher over the given tokens.
func NewWordMatcher(tokens []string) *WordMatcher {
	ac := NewAhoCorasick()
	ac.AddPatterns(tokens)
	ac.Build()
	return &WordMatcher{ac: ac}
}

// First returns the first blacklisted token occurring in text.
func (m *WordMatcher) First(text string) (string, bool) {
	match, ok := m.ac.SearchFirst(text)
	return match.Pattern, ok
}

// Contains reports whether any token occurs in text.
func (m *WordMatcher) Contains(text string) bool {
	return m.ac.Contains(text)
}
