package reference

import (
	"strings"

	"github.com/agext/levenshtein"
)

// componentSimilarity is the minimum Levenshtein similarity for two
// path components to count as a fuzzy match.
const componentSimilarity = 0.8

// FuzzyMatchPath resolves a broken target path against candidate
// files. It tries an exact normalized match, then a match ignoring
// extension, then tail alignment: walking both paths' components from
// the end and scoring the run of matching components. Ties keep the
// first-seen highest-scoring candidate.
func FuzzyMatchPath(target string, candidates []string) (string, bool) {
	normTarget := normalizePath(target)
	if normTarget == "" {
		return "", false
	}

	for _, c := range candidates {
		if normalizePath(c) == normTarget {
			return c, true
		}
	}

	targetNoExt := stripExt(normTarget)
	for _, c := range candidates {
		if stripExt(normalizePath(c)) == targetNoExt {
			return c, true
		}
	}

	var best string
	bestScore := 0
	for _, c := range candidates {
		score := tailScore(normTarget, normalizePath(c))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore > 0 {
		return best, true
	}
	return "", false
}

// normalizePath lowercases, converts backslashes, and trims.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ToLower(p))
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}

func stripExt(p string) string {
	if idx := strings.LastIndex(p, "."); idx > strings.LastIndex(p, "/") {
		return p[:idx]
	}
	return p
}

// tailScore walks both component lists from the end. Identical
// components score 2, near-identical ones (Levenshtein similarity at
// or above the threshold) score 1, and the first dissimilar pair
// stops the run.
func tailScore(a, b string) int {
	ac := strings.Split(a, "/")
	bc := strings.Split(b, "/")

	score := 0
	for i, j := len(ac)-1, len(bc)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		switch {
		case ac[i] == bc[j]:
			score += 2
		case levenshtein.Match(ac[i], bc[j], nil) >= componentSimilarity:
			score++
		default:
			return score
		}
	}
	return score
}
