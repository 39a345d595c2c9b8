package propagation

import (
	"github.com/zoobzio/spanz"
)

// Binary layout, version 0:
//
//	0x00 | 0x00 trace[16] | 0x01 span[8] | 0x02 options[1]
const (
	binaryVersion      byte = 0
	traceIDField       byte = 0
	spanIDField        byte = 1
	traceOptionsField  byte = 2
	binaryFormatLength      = 4 + spanz.TraceIDSize + spanz.SpanIDSize + 1
	binaryFormat            = "binary"
)

// BinaryFormat is the compact versioned encoding used for gRPC trace
// metadata.
type BinaryFormat struct{}

// ToBytes encodes sc.
func (BinaryFormat) ToBytes(sc spanz.SpanContext) []byte {
	b := make([]byte, 0, binaryFormatLength)
	b = append(b, binaryVersion, traceIDField)
	b = append(b, sc.TraceID[:]...)
	b = append(b, spanIDField)
	b = append(b, sc.SpanID[:]...)
	b = append(b, traceOptionsField, byte(sc.TraceOptions))
	return b
}

// FromBytes decodes b. Fields may be omitted but must appear in order; a
// truncated field is an error.
func (BinaryFormat) FromBytes(b []byte) (spanz.SpanContext, error) {
	if len(b) == 0 || b[0] != binaryVersion {
		return spanz.SpanContext{}, malformed(binaryFormat, "unsupported version", nil)
	}
	var sc spanz.SpanContext
	pos := 1
	if len(b) > pos && b[pos] == traceIDField {
		if len(b) < pos+1+spanz.TraceIDSize {
			return spanz.SpanContext{}, malformed(binaryFormat, "truncated trace id", nil)
		}
		copy(sc.TraceID[:], b[pos+1:])
		pos += 1 + spanz.TraceIDSize
	}
	if len(b) > pos && b[pos] == spanIDField {
		if len(b) < pos+1+spanz.SpanIDSize {
			return spanz.SpanContext{}, malformed(binaryFormat, "truncated span id", nil)
		}
		copy(sc.SpanID[:], b[pos+1:])
		pos += 1 + spanz.SpanIDSize
	}
	if len(b) > pos && b[pos] == traceOptionsField {
		if len(b) < pos+2 {
			return spanz.SpanContext{}, malformed(binaryFormat, "truncated trace options", nil)
		}
		sc.TraceOptions = spanz.TraceOptions(b[pos+1])
	}
	return sc, nil
}
