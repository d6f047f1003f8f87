package search

import (
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

// Ranker scores one lowercase term against a haystack. It returns the score
// in [0, 1] and the rune offsets of the matched characters in haystack; a
// zero score with nil positions means no match.
type Ranker interface {
	Score(term, haystack string) (float64, []int)
}

// Ranker names accepted by RankerFor
const (
	RankerNative  = "native"
	RankerLibrary = "library"
)

// RankerFor returns the ranker registered under name, defaulting to native
func RankerFor(name string) Ranker {
	if name == RankerLibrary {
		return LibraryRanker{}
	}
	return NativeRanker{}
}

// NativeRanker prefers literal substrings and falls back to an in-order
// subsequence scored by how tightly the characters cluster.
type NativeRanker struct{}

func (NativeRanker) Score(term, haystack string) (float64, []int) {
	t, h := lowerRunes(term), lowerRunes(haystack)
	if len(t) == 0 || len(h) == 0 {
		return 0, nil
	}
	if idx := indexRunes(h, t); idx >= 0 {
		return literalScore(idx, len(t), len(h)), span(idx, len(t))
	}

	positions := make([]int, 0, len(t))
	j := 0
	for i := 0; i < len(h) && j < len(t); i++ {
		if h[i] == t[j] {
			positions = append(positions, i)
			j++
		}
	}
	if j < len(t) {
		return 0, nil
	}
	return subsequenceScore(positions, len(h)), positions
}

// LibraryRanker lets sahilm/fuzzy choose the matched characters and scores
// them with the same formulas as NativeRanker.
type LibraryRanker struct{}

func (LibraryRanker) Score(term, haystack string) (float64, []int) {
	t, h := lowerRunes(term), lowerRunes(haystack)
	if len(t) == 0 || len(h) == 0 {
		return 0, nil
	}
	if idx := indexRunes(h, t); idx >= 0 {
		return literalScore(idx, len(t), len(h)), span(idx, len(t))
	}

	lowered := string(h)
	matches := fuzzy.Find(string(t), []string{lowered})
	if len(matches) == 0 || len(matches[0].MatchedIndexes) != len(t) {
		return 0, nil
	}
	positions := byteToRuneOffsets(lowered, matches[0].MatchedIndexes)
	return subsequenceScore(positions, len(h)), positions
}

// literalScore rewards early, proportionally long substring matches
func literalScore(start, termLen, hayLen int) float64 {
	s := 0.65 +
		0.25*(1-float64(start)/float64(hayLen)) +
		0.10*min(1, float64(termLen)/12)
	return min(1, s)
}

// subsequenceScore rewards dense, early subsequence matches
func subsequenceScore(positions []int, hayLen int) float64 {
	termLen := float64(len(positions))
	first, last := positions[0], positions[len(positions)-1]
	width := float64(last - first + 1)

	density := termLen / width
	startBonus := 1 - float64(first)/float64(hayLen)
	gapPenalty := (width - termLen) / width

	s := 0.6*density + 0.3*startBonus + 0.1*(1-gapPenalty)
	return max(0, min(1, s))
}

// lowerRunes lowercases rune by rune so offsets stay aligned with the input
func lowerRunes(s string) []rune {
	out := []rune(s)
	for i, r := range out {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(h, t []rune) int {
	for i := 0; i+len(t) <= len(h); i++ {
		match := true
		for j := range t {
			if h[i+j] != t[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func span(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func byteToRuneOffsets(s string, byteIdx []int) []int {
	out := make([]int, 0, len(byteIdx))
	k := 0
	runeIdx := 0
	for b := 0; b < len(s) && k < len(byteIdx); {
		if b == byteIdx[k] {
			out = append(out, runeIdx)
			k++
		}
		_, size := utf8.DecodeRuneInString(s[b:])
		b += size
		runeIdx++
	}
	return out
}
