package codec

import "fmt"

// LimitCodec caps the payload size Inner.Decode is allowed to see; Encode is
// forwarded untouched. MaxDecode <= 0 disables the cap.
//
// Entries in a shared store may have been written by other tenants or older
// deployments, so the cap rejects oversized payloads before any
// deserialization work happens.
type LimitCodec[V any] struct {
	// Inner is the wrapped codec. Must be set.
	Inner interface {
		Encode(V) ([]byte, error)
		Decode([]byte) (V, error)
	}
	// MaxDecode is the largest payload (in bytes) Decode will accept.
	MaxDecode int
}

func (c LimitCodec[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c LimitCodec[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
