package codec

// Codec turns values into the payload bytes stored inside the cache
// envelope and back. A Decode failure on the read path marks the entry as
// bad: the manager evicts it and reports a miss.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
