// Package sort sorts device buffers with a choice of parallel algorithms.
//
// A Sorter is created by implementation name for one element type, an
// optional key type and comparison, and implementation options:
//
//	s, err := sort.New("abitonic", h, clo.UInt, sort.WithOptions("maxps=3"))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	err = s.SortHost(nil, nil, clo.AsBytes(keys), nil, len(keys), 0)
//
// The default comparison "a > b" exchanges a pair when its lower element is
// greater, so results are ascending; "a < b" sorts descending.
//
// # Implementations
//
//   - sbitonic: one bitonic kernel dispatched once per network step.
//   - abitonic: bitonic sort that fuses several steps per dispatch, in
//     private or local memory, choosing kernels per step from the device
//     limits. Options: minps, maxps (fused steps, 1 to 4) and maxsfs (the
//     largest step finished in local memory).
//   - gselect: O(n²) selection by rank in global memory. Stable.
//   - satradix: least significant digit radix sort built on package scan.
//     Options: radix (power of two, default 16) and scan (implementation,
//     default blelloch).
//
// sbitonic, abitonic and satradix sort in place when no output buffer is
// given; gselect always writes to a separate buffer and copies back.
package sort
