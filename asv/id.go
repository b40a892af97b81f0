package asv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/minio/blake2b-simd"
)

// ErrIDCollision means two different sequences produced the same identifier.
// It can only come from corrupted input, but it would silently merge two
// variants, so it is always fatal.
var ErrIDCollision = errors.New("variant identifier collision")

// IDSize is the digest size in bytes.
const IDSize = 32

// ID is the content-addressed identity of a variant: the hex encoded BLAKE2b
// digest of its upper-cased nucleotide sequence.
type ID string

// NewID hashes a sequence. It is a pure function of the sequence, so the same
// variant inferred by two independent runs gets the same ID.
func NewID(sequence string) ID {
	h, err := blake2b.New(&blake2b.Config{Size: IDSize})
	if err != nil {
		// Only reachable with an invalid digest size
		panic(err)
	}
	h.Write([]byte(NormalizeSequence(sequence)))

	return ID(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeSequence upper-cases a sequence and strips surrounding whitespace.
func NormalizeSequence(sequence string) string {
	return strings.ToUpper(strings.TrimSpace(sequence))
}

// Registry remembers which sequence every ID was derived from, so that a
// collision is detected instead of silently merging two variants.
type Registry struct {
	m map[ID]int
	s []string
}

func NewRegistry() *Registry {
	return &Registry{
		m: make(map[ID]int),
		s: make([]string, 0),
	}
}

// Add registers the sequence and returns its ID. Adding the same sequence
// twice is a no-op.
func (r *Registry) Add(sequence string) (ID, error) {
	sequence = NormalizeSequence(sequence)
	id := NewID(sequence)

	return id, r.add(id, sequence)
}

// AddWithID registers a sequence whose ID was read from an artifact. The ID
// must match the sequence.
func (r *Registry) AddWithID(id ID, sequence string) error {
	sequence = NormalizeSequence(sequence)
	if expected := NewID(sequence); expected != id {
		return fmt.Errorf("%w: amplicon %s does not match the digest %s of its sequence", ErrIDCollision, id, expected)
	}

	return r.add(id, sequence)
}

func (r *Registry) add(id ID, sequence string) error {
	if pos, exists := r.m[id]; exists {
		if r.s[pos] != sequence {
			log.Printf("!!! Variant identifier %s maps to two different sequences (%d and %d bases). The input is corrupted.\n", id, len(r.s[pos]), len(sequence))
			return fmt.Errorf("%w: %s", ErrIDCollision, id)
		}
		return nil
	}

	r.m[id] = len(r.s)
	r.s = append(r.s, sequence)

	return nil
}

func (r *Registry) Sequence(id ID) (string, bool) {
	pos, exists := r.m[id]
	if !exists {
		return "", false
	}
	return r.s[pos], true
}

func (r *Registry) Len() int {
	return len(r.s)
}
