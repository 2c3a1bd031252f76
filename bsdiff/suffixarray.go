package bsdiff

import "github.com/google/archive-patcher-sub004/internal/pool"

// buildSuffixArray returns the suffix array of old: sa[k] is the starting
// offset of the k-th smallest suffix of old, under byte-lexicographic
// order with old treated as terminated (the empty suffix sorts first).
// len(sa) == len(old)+1. The caller must invoke the returned release func
// (typically via defer) once it is done with sa.
//
// This is Larsson and Sadakane's qsufsort: an O(n log n) doubling sort
// that refines a byte-level bucket sort by comparing, at each pass, the
// rank pair (rank[i], rank[i+h]) instead of individual bytes, doubling h
// each round until every suffix has a unique rank.
func buildSuffixArray(old []byte) ([]int32, func()) {
	n := len(old)

	sa, saRelease := pool.GetInt32Slice(n + 1)
	rank, rankRelease := pool.GetInt32Slice(n + 1)
	defer rankRelease()

	var buckets [256]int32
	for _, b := range old {
		buckets[b]++
	}
	for i := 1; i < 256; i++ {
		buckets[i] += buckets[i-1]
	}
	for i := 255; i > 0; i-- {
		buckets[i] = buckets[i-1]
	}
	buckets[0] = 0

	for i := 0; i < n; i++ {
		buckets[old[i]]++
		sa[buckets[old[i]]] = int32(i)
	}
	sa[0] = int32(n)

	for i := 0; i < n; i++ {
		rank[i] = buckets[old[i]]
	}
	rank[n] = 0

	for i := 1; i < 256; i++ {
		if buckets[i] == buckets[i-1]+1 {
			sa[buckets[i]] = -1
		}
	}
	sa[0] = -1

	for h := int32(1); sa[0] != -(int32(n) + 1); h += h {
		var length int32
		i := 0
		for i < n+1 {
			if sa[i] < 0 {
				length -= sa[i]
				i -= int(sa[i])
			} else {
				if length != 0 {
					sa[i-int(length)] = -length
				}
				length = rank[sa[i]] - int32(i) + 1
				split(sa, rank, i, int(length), h)
				i += int(length)
				length = 0
			}
		}
		if length != 0 {
			sa[i-int(length)] = -length
		}
	}

	for i := 0; i < n+1; i++ {
		sa[rank[i]] = int32(i)
	}

	return sa, saRelease
}

// split is the doubling sort's partition step: within sa[start:start+length],
// group suffixes by rank[sa[i]+h], recursing on sub-groups and writing the
// provisional rank (the group's final index) back into rank so the next
// doubling pass can compare longer prefixes.
func split(sa, rank []int32, start, length int, h int32) {
	if length < 16 {
		for k := start; k < start+length; {
			j := 1
			x := rank[sa[k]+h]
			for i := 1; k+i < start+length; i++ {
				if rank[sa[k+i]+h] < x {
					x = rank[sa[k+i]+h]
					j = 0
				}
				if rank[sa[k+i]+h] == x {
					sa[k+j], sa[k+i] = sa[k+i], sa[k+j]
					j++
				}
			}
			for i := 0; i < j; i++ {
				rank[sa[k+i]] = int32(k + j - 1)
			}
			if j == 1 {
				sa[k] = -1
			}
			k += j
		}
		return
	}

	x := rank[sa[start+length/2]+h]
	jj, kk := 0, 0
	for i := start; i < start+length; i++ {
		if rank[sa[i]+h] < x {
			jj++
		}
		if rank[sa[i]+h] == x {
			kk++
		}
	}
	jj += start
	kk += jj

	i, j, k := start, 0, 0
	for i < jj {
		switch {
		case rank[sa[i]+h] < x:
			i++
		case rank[sa[i]+h] == x:
			sa[i], sa[jj+j] = sa[jj+j], sa[i]
			j++
		default:
			sa[i], sa[kk+k] = sa[kk+k], sa[i]
			k++
		}
	}

	for jj+j < kk {
		if rank[sa[jj+j]+h] == x {
			j++
		} else {
			sa[jj+j], sa[kk+k] = sa[kk+k], sa[jj+j]
			k++
		}
	}

	if jj > start {
		split(sa, rank, start, jj-start, h)
	}

	for i := 0; i < kk-jj; i++ {
		rank[sa[jj+i]] = int32(kk - 1)
	}
	if jj == kk-1 {
		sa[jj] = -1
	}

	if start+length > kk {
		split(sa, rank, kk, start+length-kk, h)
	}
}
