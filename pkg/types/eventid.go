// Package types provides core identifier types shared across pathlens.
package types

import (
	"crypto/rand"
	"sync"
	"time"
)

// EventID is a 128-bit time-ordered event identifier.
// Layout: 48-bit millisecond timestamp followed by 80 random bits, so ids
// assigned from event timestamps sort in event-time order.
type EventID [16]byte

// Crockford's Base32 alphabet (excludes I, L, O, U).
const eventIDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// EventIDGenerator assigns EventIDs. Ids generated for the same millisecond
// are monotonically increasing, so uniqueness holds even for rows sharing a
// timestamp.
type EventIDGenerator struct {
	mu       sync.Mutex
	lastMs   uint64
	lastRand [10]byte
}

// NewEventIDGenerator creates a generator with no prior state.
func NewEventIDGenerator() *EventIDGenerator {
	return &EventIDGenerator{}
}

// Next generates an EventID stamped with the current wall clock.
func (g *EventIDGenerator) Next() (EventID, error) {
	return g.At(time.Now())
}

// At generates an EventID stamped with the given instant. Rows normalized
// from raw input use their own event timestamp here, which keeps ids aligned
// with the stream's sort order.
func (g *EventIDGenerator) At(t time.Time) (EventID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())

	var id EventID
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	if ms == g.lastMs {
		// Same millisecond: bump the random tail to stay monotonic.
		for i := 9; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.lastRand[:]); err != nil {
			return EventID{}, err
		}
		g.lastMs = ms
	}
	copy(id[6:], g.lastRand[:])

	return id, nil
}

// IsZero reports whether the id is the zero value. The zero id is never
// assigned and serves as the null marker in relation columns.
func (id EventID) IsZero() bool {
	return id == EventID{}
}

// Bytes returns the id as a 16-byte slice.
func (id EventID) Bytes() []byte {
	return id[:]
}

// Millis returns the embedded millisecond timestamp.
func (id EventID) Millis() uint64 {
	return uint64(id[0])<<40 | uint64(id[1])<<32 | uint64(id[2])<<24 |
		uint64(id[3])<<16 | uint64(id[4])<<8 | uint64(id[5])
}

// Time returns the embedded timestamp as a time.Time.
func (id EventID) Time() time.Time {
	return time.UnixMilli(int64(id.Millis()))
}

// Compare orders two ids lexicographically, which for ids assigned via At
// coincides with event-time order.
func (id EventID) Compare(other EventID) int {
	for i := 0; i < 16; i++ {
		if id[i] < other[i] {
			return -1
		}
		if id[i] > other[i] {
			return 1
		}
	}
	return 0
}

// String encodes the id as a 26-character Crockford Base32 string.
func (id EventID) String() string {
	hi := uint64(id[0])<<56 | uint64(id[1])<<48 | uint64(id[2])<<40 | uint64(id[3])<<32 |
		uint64(id[4])<<24 | uint64(id[5])<<16 | uint64(id[6])<<8 | uint64(id[7])
	lo := uint64(id[8])<<56 | uint64(id[9])<<48 | uint64(id[10])<<40 | uint64(id[11])<<32 |
		uint64(id[12])<<24 | uint64(id[13])<<16 | uint64(id[14])<<8 | uint64(id[15])

	var buf [26]byte
	for i := 25; i >= 0; i-- {
		buf[i] = eventIDAlphabet[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(buf[:])
}

// ParseEventID decodes a 26-character Crockford Base32 string.
func ParseEventID(s string) (EventID, error) {
	if len(s) != 26 {
		return EventID{}, ErrInvalidEventIDLength
	}

	var hi, lo uint64
	for i := 0; i < 26; i++ {
		d := decodeEventIDChar(s[i])
		if d == 0xFF {
			return EventID{}, ErrInvalidEventIDChar
		}
		if i == 0 && d > 7 {
			// 26 base32 digits carry 130 bits; the leading digit may only
			// use the low 3.
			return EventID{}, ErrInvalidEventIDChar
		}
		hi = hi<<5 | lo>>59
		lo = lo<<5 | uint64(d)
	}

	var id EventID
	for i := 7; i >= 0; i-- {
		id[i] = byte(hi)
		id[i+8] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	return id, nil
}

// EventIDFromBytes builds an id from a 16-byte slice.
func EventIDFromBytes(b []byte) (EventID, error) {
	if len(b) != 16 {
		return EventID{}, ErrInvalidEventIDLength
	}
	var id EventID
	copy(id[:], b)
	return id, nil
}

func decodeEventIDChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'H':
		return c - 'A' + 10
	case c >= 'a' && c <= 'h':
		return c - 'a' + 10
	case c == 'J' || c == 'K':
		return c - 'J' + 18
	case c == 'j' || c == 'k':
		return c - 'j' + 18
	case c == 'M' || c == 'N':
		return c - 'M' + 20
	case c == 'm' || c == 'n':
		return c - 'm' + 20
	case c >= 'P' && c <= 'T':
		return c - 'P' + 22
	case c >= 'p' && c <= 't':
		return c - 'p' + 22
	case c >= 'V' && c <= 'Z':
		return c - 'V' + 27
	case c >= 'v' && c <= 'z':
		return c - 'v' + 27
	default:
		return 0xFF
	}
}
