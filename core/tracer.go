package core

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/knotx-labs/knotx-relayer/otelcore/semconv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/knotx-labs/knotx-relayer/core")
)

// WithChainAttributes sets the chain attribute of a span.
func WithChainAttributes(chain string) trace.SpanStartOption {
	return trace.WithAttributes(semconv.ChainKey.String(chain))
}

// WithMessageAttributes sets the identity and route of msg on a span.
func WithMessageAttributes(msg *CanonicalMessage) trace.SpanStartOption {
	return trace.WithAttributes(slices.Concat(
		[]attribute.KeyValue{
			semconv.MessageIDKey.String(msg.MessageID),
			// the attribute package does not support uint64
			semconv.NonceKey.String(fmt.Sprint(msg.Nonce)),
		},
		semconv.AttributeGroup("src", semconv.ChainKey.String(msg.SourceChain)),
		semconv.AttributeGroup("dst", semconv.ChainKey.String(msg.DestinationChain)),
	)...)
}

// withPackage adds the package name of the function/method `v`
func withPackage(v any) trace.SpanStartOption {
	return trace.WithAttributes(semconv.PackageKey.String(getPackageName(v)))
}

func getPackageName(v any) string {
	if v == nil {
		return ""
	}

	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt.PkgPath()
}
