package burst

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedID is returned when a burst identifier does not follow the
// PPP_FFFFFF_IWn layout.
var ErrMalformedID = errors.New("malformed burst id")

const (
	pathLen  = 3
	frameLen = 6

	// MaxFrame is the largest frame id that fits the six digit encoding.
	MaxFrame = 999999
)

// Key identifies a single burst: the acquisition path, the frame id along
// the track and the IW sub-swath.
type Key struct {
	Path  string
	Frame int
	Swath SubSwath
}

// Parse decodes an identifier such as "064_135527_IW1".
func Parse(id string) (Key, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q: expected 3 fields, got %d", ErrMalformedID, id, len(parts))
	}

	path, err := parsePath(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrMalformedID, id, err)
	}
	frame, err := parseFrame(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrMalformedID, id, err)
	}
	swath, err := ParseSubSwath(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrMalformedID, id, err)
	}

	return Key{Path: path, Frame: frame, Swath: swath}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and constants.
func MustParse(id string) Key {
	k, err := Parse(id)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseFrameKey decodes the "PPP_FFFFFF" form produced by Key.FrameKey.
func ParseFrameKey(s string) (path string, frame int, err error) {
	head, tail, ok := strings.Cut(s, "_")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q: expected PPP_FFFFFF", ErrMalformedID, s)
	}
	if path, err = parsePath(head); err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrMalformedID, s, err)
	}
	if frame, err = parseFrame(tail); err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrMalformedID, s, err)
	}
	return path, frame, nil
}

// String returns the canonical PPP_FFFFFF_IWn form.
func (k Key) String() string {
	return k.FrameKey() + "_" + k.Swath.String()
}

// FrameKey returns the PPP_FFFFFF prefix shared by all sub-swaths of a frame.
func (k Key) FrameKey() string {
	return FrameKey(k.Path, k.Frame)
}

// FrameKey formats a path and frame id as PPP_FFFFFF.
func FrameKey(path string, frame int) string {
	return path + "_" + FormatFrame(frame)
}

// FormatFrame zero pads a frame id to six digits.
func FormatFrame(frame int) string {
	return fmt.Sprintf("%06d", frame)
}

func parsePath(s string) (string, error) {
	if len(s) != pathLen || !allDigits(s) {
		return "", fmt.Errorf("path %q must be %d digits", s, pathLen)
	}
	return s, nil
}

func parseFrame(s string) (int, error) {
	if len(s) != frameLen || !allDigits(s) {
		return 0, fmt.Errorf("frame %q must be %d digits", s, frameLen)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("frame %q: %w", s, err)
	}
	return n, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
