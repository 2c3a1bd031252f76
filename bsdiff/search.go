package bsdiff

import "bytes"

// matchlen returns the length of the common prefix of old and next.
func matchlen(old, next []byte) int {
	n := len(old)
	if len(next) < n {
		n = len(next)
	}

	for i := 0; i < n; i++ {
		if old[i] != next[i] {
			return i
		}
	}

	return n
}

// search binary-searches sa for the suffix of old that shares the longest
// prefix with next, restricting the search to sa[lo:hi+1]. It returns that
// prefix's length and the matching suffix's starting offset in old.
func search(sa []int32, old, next []byte, lo, hi int) (length int, pos int32) {
	if hi-lo < 2 {
		lenLo := matchlen(old[sa[lo]:], next)
		lenHi := matchlen(old[sa[hi]:], next)

		if lenLo > lenHi {
			return lenLo, sa[lo]
		}
		return lenHi, sa[hi]
	}

	mid := lo + (hi-lo)/2
	cut := old[sa[mid]:]

	window := len(cut)
	if len(next) < window {
		window = len(next)
	}

	if bytes.Compare(cut[:window], next[:window]) < 0 {
		return search(sa, old, next, mid, hi)
	}
	return search(sa, old, next, lo, mid)
}
