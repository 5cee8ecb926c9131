package observability

import "go.opentelemetry.io/otel/attribute"

func attributesFor(e Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("kind", string(e.Kind)),
		attribute.String("name", e.Name),
	}
	for k, v := range e.Tags {
		attrs = append(attrs, attribute.String("tag."+k, v))
	}
	return attrs
}
