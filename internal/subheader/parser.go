// Package subheader turns the small text blob under a catalog listing
// into download and like counts. The blob is tokenized into count and
// separator tokens instead of being matched against exact whitespace
// runs, so layout changes in the markup don't break the parse.
package subheader

import (
	"strconv"
	"strings"
	"unicode"
)

// bullet separates the download count from the like count.
const bullet = "•"

type tokenKind int

const (
	tokenCount tokenKind = iota
	tokenBullet
	tokenText
)

type token struct {
	kind  tokenKind
	count int
}

// Parse resolves the raw subheader into (downloads, likes). A count
// whose presence flag is false is 0 without any extraction attempt.
//
// Download counts render immediately before the bullet separator,
// like counts after it; when only one of the two markers is present
// the sole count token carries that metric.
func Parse(raw string, hasDownloads, hasLikes bool) (int, int) {
	if !hasDownloads && !hasLikes {
		return 0, 0
	}

	tokens := tokenize(raw)
	downloads, likes := 0, 0

	if hasDownloads {
		if hasLikes {
			downloads = firstCount(tokens, true)
		} else {
			downloads = firstCount(tokens, false)
		}
	}
	if hasLikes {
		if hasDownloads {
			likes = firstLoneCount(tokens)
		} else {
			likes = firstCount(tokens, false)
		}
	}

	return downloads, likes
}

// firstCount returns the first count token; with beforeBullet set it
// must be immediately followed by the bullet separator.
func firstCount(tokens []token, beforeBullet bool) int {
	for i, t := range tokens {
		if t.kind != tokenCount {
			continue
		}
		if !beforeBullet {
			return t.count
		}
		if i+1 < len(tokens) && tokens[i+1].kind == tokenBullet {
			return t.count
		}
	}
	return 0
}

// firstLoneCount returns the first count token NOT followed by the
// bullet separator, i.e. the count rendered after it.
func firstLoneCount(tokens []token) int {
	for i, t := range tokens {
		if t.kind != tokenCount {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1].kind == tokenBullet {
			continue
		}
		return t.count
	}
	return 0
}

func tokenize(raw string) []token {
	fields := strings.FieldsFunc(raw, unicode.IsSpace)
	tokens := make([]token, 0, len(fields))
	for _, f := range fields {
		switch {
		case f == bullet:
			tokens = append(tokens, token{kind: tokenBullet})
		default:
			if n, ok := parseCount(f); ok {
				tokens = append(tokens, token{kind: tokenCount, count: n})
			} else {
				tokens = append(tokens, token{kind: tokenText})
			}
		}
	}
	return tokens
}

// parseCount accepts a decimal number with an optional k or M unit
// suffix. Units scale by 1e3 and 1e6, truncated toward zero.
func parseCount(field string) (int, bool) {
	multiplier := 1.0
	switch {
	case strings.HasSuffix(field, "k"):
		multiplier = 1_000
		field = strings.TrimSuffix(field, "k")
	case strings.HasSuffix(field, "M"):
		multiplier = 1_000_000
		field = strings.TrimSuffix(field, "M")
	}

	if field == "" {
		return 0, false
	}
	for _, r := range field {
		if !unicode.IsDigit(r) && r != '.' {
			return 0, false
		}
	}

	value, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return int(value * multiplier), true
}
