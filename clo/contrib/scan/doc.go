// Package scan computes exclusive prefix sums of device buffers.
//
// A Scanner is created by implementation name for one element type and one
// sum type, which may be wider than the elements to avoid overflow:
//
//	s, err := scan.New("blelloch", h, clo.UInt, scan.WithSumType(clo.ULong))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	err = s.ScanHost(nil, nil, clo.AsBytes(in), clo.AsBytes(out), len(in), 0)
//
// For index i the result holds the sum of elements [0, i). Overflow of the
// sum type is not detected.
//
// # Implementations
//
// blelloch is the work-efficient tree scan. Each work-group scans blocks of
// twice its local size in local memory and records its total; when more than
// one group ran, the totals are scanned by a single group and added back to
// every element of their group.
package scan
