package spanz

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// TraceIDSize is the size in bytes of a TraceID.
	TraceIDSize = 16
	// SpanIDSize is the size in bytes of a SpanID.
	SpanIDSize = 8
)

// ErrInvalidID is returned when an ID cannot be decoded from its textual form.
var ErrInvalidID = errors.New("invalid id")

// TraceID identifies a trace. The zero value is invalid.
type TraceID [TraceIDSize]byte

// SpanID identifies a span within a trace. The zero value is invalid.
type SpanID [SpanIDSize]byte

// IsValid reports whether at least one byte is non-zero.
func (t TraceID) IsValid() bool {
	return t != TraceID{}
}

// String returns the lowercase hex form (32 characters).
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsValid reports whether at least one byte is non-zero.
func (s SpanID) IsValid() bool {
	return s != SpanID{}
}

// String returns the lowercase hex form (16 characters).
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// Uint64 returns the big-endian integer value of the id.
func (s SpanID) Uint64() uint64 {
	return binary.BigEndian.Uint64(s[:])
}

// SpanIDFromUint64 encodes v big-endian into a SpanID.
func SpanIDFromUint64(v uint64) SpanID {
	var s SpanID
	binary.BigEndian.PutUint64(s[:], v)
	return s
}

// TraceIDFromHex decodes a 32 character lowercase hex string.
func TraceIDFromHex(s string) (TraceID, error) {
	var t TraceID
	if err := decodeLowerHex(t[:], s); err != nil {
		return TraceID{}, err
	}
	return t, nil
}

// SpanIDFromHex decodes a 16 character lowercase hex string.
func SpanIDFromHex(s string) (SpanID, error) {
	var id SpanID
	if err := decodeLowerHex(id[:], s); err != nil {
		return SpanID{}, err
	}
	return id, nil
}

// decodeLowerHex rejects uppercase digits, which hex.DecodeString accepts.
func decodeLowerHex(dst []byte, s string) error {
	if len(s) != 2*len(dst) {
		return fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidID, 2*len(dst), len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: non lowercase hex character %q", ErrInvalidID, c)
		}
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return nil
}

// TraceOptions is a bit set carried with every SpanContext.
type TraceOptions byte

// Sampled marks a trace whose spans are exported.
const Sampled TraceOptions = 1

// IsSampled reports whether the sampled bit is set.
func (o TraceOptions) IsSampled() bool {
	return o&Sampled != 0
}

// WithSampled returns a copy with the sampled bit set or cleared.
func (o TraceOptions) WithSampled(sampled bool) TraceOptions {
	if sampled {
		return o | Sampled
	}
	return o &^ Sampled
}

// TracestateEntry is one vendor key/value pair.
type TracestateEntry struct {
	Key   string
	Value string
}

// Tracestate is an ordered, immutable list of vendor entries.
type Tracestate []TracestateEntry

// Get returns the value stored under key.
func (ts Tracestate) Get(key string) (string, bool) {
	for _, e := range ts {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// With returns a new Tracestate with key moved to the front and set to value.
func (ts Tracestate) With(key, value string) Tracestate {
	out := make(Tracestate, 0, len(ts)+1)
	out = append(out, TracestateEntry{Key: key, Value: value})
	for _, e := range ts {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// SpanContext is the portable identity of a span.
type SpanContext struct {
	Tracestate   Tracestate
	TraceID      TraceID
	SpanID       SpanID
	TraceOptions TraceOptions
}

// InvalidSpanContext is the all-zero sentinel context.
var InvalidSpanContext = SpanContext{}

// IsValid reports whether both the trace and span ids are non-zero.
func (sc SpanContext) IsValid() bool {
	return sc.TraceID.IsValid() && sc.SpanID.IsValid()
}

// IsSampled is shorthand for sc.TraceOptions.IsSampled().
func (sc SpanContext) IsSampled() bool {
	return sc.TraceOptions.IsSampled()
}

// Equal compares ids, options and tracestate entries.
func (sc SpanContext) Equal(other SpanContext) bool {
	if sc.TraceID != other.TraceID || sc.SpanID != other.SpanID || sc.TraceOptions != other.TraceOptions {
		return false
	}
	if len(sc.Tracestate) != len(other.Tracestate) {
		return false
	}
	for i := range sc.Tracestate {
		if sc.Tracestate[i] != other.Tracestate[i] {
			return false
		}
	}
	return true
}
