package ir

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
)

type internable[T any] interface {
	Hash() uint64
	Equal(other T) bool
}

// internTable is a content-addressed cache: values are bucketed by their
// structural hash and matched within a bucket by Equal.
type internTable[T internable[T]] struct {
	buckets map[uint64][]T
}

func newInternTable[T internable[T]]() *internTable[T] {
	return &internTable[T]{buckets: make(map[uint64][]T)}
}

func (t *internTable[T]) intern(v T) T {
	h := v.Hash()
	for _, existing := range t.buckets[h] {
		if existing.Equal(v) {
			return existing
		}
	}
	t.buckets[h] = append(t.buckets[h], v)
	return v
}

func (t *internTable[T]) len() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}

type hasher struct {
	h   hash.Hash64
	buf [8]byte
}

func newHasher(tag string) *hasher {
	h := &hasher{h: fnv.New64a()}
	h.h.Write([]byte(tag))
	return h
}

func (h *hasher) writeUint(v uint64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.h.Write(h.buf[:])
	return h
}

func (h *hasher) writeInt(v int64) *hasher { return h.writeUint(uint64(v)) }

func (h *hasher) writeString(s string) *hasher {
	h.writeUint(uint64(len(s)))
	h.h.Write([]byte(s))
	return h
}

func (h *hasher) sum() uint64 { return h.h.Sum64() }
