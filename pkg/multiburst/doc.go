// Package multiburst partitions Sentinel-1 burst identifiers into
// multi-burst groups the burst catalog accepts.
//
// A multi-burst spans contiguous frames of one path and at most three
// sub-swaths. The catalog rejects sets that exceed its slot capacity or whose
// sub-swath frame ranges overlap only partially. The Partitioner drives a
// Validator and, on rejection, splits and repairs the set until every piece
// is accepted.
package multiburst
