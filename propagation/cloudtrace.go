package propagation

import (
	"strconv"
	"strings"

	"github.com/zoobzio/spanz"
)

// CloudTraceHeader is the Google Cloud Trace context header.
const CloudTraceHeader = "X-Cloud-Trace-Context"

const (
	cloudTraceFormat = "cloud trace"
	traceOptionsSep  = ";o="
)

// CloudTraceFormat is the traceId/spanIdDecimal;o=options format. The span
// id is the big-endian unsigned decimal value of the 8 id bytes.
type CloudTraceFormat struct{}

// Fields implements TextFormat.
func (CloudTraceFormat) Fields() []string {
	return []string{CloudTraceHeader}
}

// Inject always writes the options suffix, ;o=1 or ;o=0.
func (CloudTraceFormat) Inject(sc spanz.SpanContext, carrier Setter) {
	opts := "0"
	if sc.IsSampled() {
		opts = "1"
	}
	carrier.Set(CloudTraceHeader,
		sc.TraceID.String()+"/"+strconv.FormatUint(sc.SpanID.Uint64(), 10)+traceOptionsSep+opts)
}

// Extract parses the header. A missing ;o= suffix means not sampled.
func (CloudTraceFormat) Extract(carrier Getter) (spanz.SpanContext, error) {
	header, ok := carrier.Get(CloudTraceHeader)
	if !ok {
		return spanz.SpanContext{}, missing(cloudTraceFormat, ErrMissingHeader)
	}
	if header == "" {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "empty header", nil)
	}

	slash := strings.IndexByte(header, '/')
	if slash != 2*spanz.TraceIDSize {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "trace id must be 32 hex characters followed by /", nil)
	}
	traceID, err := spanz.TraceIDFromHex(header[:slash])
	if err != nil {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "invalid trace id", err)
	}
	if !traceID.IsValid() {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "trace id is all zeros", nil)
	}

	rest := header[slash+1:]
	spanStr, optsStr, hasOpts := strings.Cut(rest, traceOptionsSep)
	if !isDecimal(spanStr) {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "span id must be an unsigned decimal", nil)
	}
	spanValue, err := strconv.ParseUint(spanStr, 10, 64)
	if err != nil {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "invalid span id", err)
	}
	spanID := spanz.SpanIDFromUint64(spanValue)
	if !spanID.IsValid() {
		return spanz.SpanContext{}, malformed(cloudTraceFormat, "span id is zero", nil)
	}

	var opts spanz.TraceOptions
	if hasOpts {
		if !isDecimal(optsStr) {
			return spanz.SpanContext{}, malformed(cloudTraceFormat, "trace options must be an unsigned decimal", nil)
		}
		mask, err := strconv.ParseUint(optsStr, 10, 32)
		if err != nil {
			return spanz.SpanContext{}, malformed(cloudTraceFormat, "invalid trace options", err)
		}
		opts = opts.WithSampled(mask&1 != 0)
	}
	return spanz.SpanContext{TraceID: traceID, SpanID: spanID, TraceOptions: opts}, nil
}

// isDecimal reports whether s is a non-empty run of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
