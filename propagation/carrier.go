// Package propagation translates span contexts to and from wire headers.
//
// Formats read and write through the Getter and Setter carrier interfaces,
// so the same format serves HTTP headers, gRPC metadata, plain maps and
// OpenTelemetry carriers.
package propagation

import (
	"net/http"
	"strings"

	otelprop "go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc/metadata"
)

// Getter reads one header from a carrier. ok is false when the header is
// absent, which formats distinguish from an empty value.
type Getter interface {
	Get(key string) (value string, ok bool)
}

// Setter writes one header to a carrier, replacing any previous value.
type Setter interface {
	Set(key, value string)
}

// Carrier is both a Getter and a Setter.
type Carrier interface {
	Getter
	Setter
}

// MapCarrier is a case-sensitive in-memory carrier.
type MapCarrier map[string]string

// Get implements Getter.
func (c MapCarrier) Get(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Set implements Setter.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// HeaderCarrier adapts http.Header. Keys are canonicalized.
type HeaderCarrier http.Header

// Get implements Getter.
func (c HeaderCarrier) Get(key string) (string, bool) {
	values, ok := c[http.CanonicalHeaderKey(key)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Set implements Setter.
func (c HeaderCarrier) Set(key, value string) {
	http.Header(c).Set(key, value)
}

// MetadataCarrier adapts gRPC metadata. Keys are lowercased.
type MetadataCarrier metadata.MD

// Get implements Getter.
func (c MetadataCarrier) Get(key string) (string, bool) {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Set implements Setter.
func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// TextMapCarrier adapts an OpenTelemetry carrier. Presence is taken from
// Keys, compared case-insensitively, because the OpenTelemetry Get cannot
// tell an absent key from an empty value.
type TextMapCarrier struct {
	otelprop.TextMapCarrier
}

// Get implements Getter.
func (c TextMapCarrier) Get(key string) (string, bool) {
	for _, k := range c.Keys() {
		if strings.EqualFold(k, key) {
			return c.TextMapCarrier.Get(k), true
		}
	}
	return "", false
}

// Set implements Setter.
func (c TextMapCarrier) Set(key, value string) {
	c.TextMapCarrier.Set(key, value)
}
