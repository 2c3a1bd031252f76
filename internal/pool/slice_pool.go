package pool

import "sync"

// Slice pools for efficient reuse of typed scratch slices. The suffix-array
// sort draws its suffix array and rank (inverse) array from the int32 pool,
// which avoids repeated large allocations across successive Generate calls.
var (
	int32SlicePool = sync.Pool{
		New: func() any { return &[]int32{} },
	}
	int64SlicePool = sync.Pool{
		New: func() any { return &[]int64{} },
	}
)

// GetInt32Slice retrieves and resizes an int32 slice from the pool.
//
// The returned slice will have the exact length specified by the size
// parameter. If the pooled slice has insufficient capacity, a new slice is
// allocated. The caller must call the returned cleanup function (typically
// via defer) to return the slice to the pool.
//
// Example:
//
//	sa, cleanup := pool.GetInt32Slice(len(old))
//	defer cleanup()
//	// use sa as the suffix array...
func GetInt32Slice(size int) ([]int32, func()) {
	ptr, _ := int32SlicePool.Get().(*[]int32)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]int32, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { int32SlicePool.Put(ptr) }
}

// GetInt64Slice retrieves and resizes an int64 slice from the pool, with
// the same length and cleanup contract as GetInt32Slice. BSDIFF generation
// does not use it; it accumulates its control records in a plain slice.
func GetInt64Slice(size int) ([]int64, func()) {
	ptr, _ := int64SlicePool.Get().(*[]int64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]int64, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { int64SlicePool.Put(ptr) }
}
