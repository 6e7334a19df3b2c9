package lens

import (
	"strconv"
	"unicode/utf16"
)

// #region hash

// Hash is a 32-bit rolling polynomial string hash (h = h*31 + c over the
// UTF-16 code units of s, wrapping at int32), returned as its absolute value.
// Code units rather than bytes keep non-ASCII genres and tones on the same
// selector as a JavaScript charCodeAt hash. It is not cryptographic; it only
// has to be stable across runs and platforms.
func Hash(s string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	if h < 0 {
		// -MinInt32 does not fit in int32 but does in uint32.
		return uint32(-int64(h))
	}
	return uint32(h)
}

// Selector derives the protagonist pool index seed. Identical inputs always
// yield the identical selector.
func Selector(archetype Archetype, genre, tone string, historyLen int) uint32 {
	return Hash(selectorKey(archetype, genre, tone, historyLen))
}

// loveInterestSelector is the second derived index, keyed off the love
// interest's own archetype so the two picks do not move in lockstep.
func loveInterestSelector(archetype Archetype, genre, tone string, historyLen int) uint32 {
	return Hash(selectorKey(archetype, genre, tone, historyLen) + "|love_interest")
}

func selectorKey(archetype Archetype, genre, tone string, historyLen int) string {
	return string(archetype) + "|" + genre + "|" + tone + "|" + strconv.Itoa(historyLen)
}

func pickIndex(selector uint32, size int) int {
	return int(selector % uint32(size))
}

// #endregion hash
