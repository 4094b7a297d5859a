// Package burst models Sentinel-1 burst identifiers.
//
// A burst is addressed by its acquisition path (three digits), its frame id
// along the track (six digits, zero padded) and its IW sub-swath, encoded as
// PPP_FFFFFF_IWn. Keys are plain values and never change once parsed.
package burst
