package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// IDAllocator hands out stable, monotonically increasing internal IDs,
// unique within one store instance and never reused. Grounded on the
// teacher's indexer/series_id.go atomic-counter pattern, generalized from a
// single series namespace to any entity kind.
type IDAllocator struct {
	next atomic.Int64
}

// NewIDAllocator creates an allocator that will hand out startAt, startAt+1,
// ... startAt must be >= 1; callers restoring from persisted state pass
// lastAssigned+1.
func NewIDAllocator(startAt int64) *IDAllocator {
	a := &IDAllocator{}
	if startAt < 1 {
		startAt = 1
	}
	a.next.Store(startAt)
	return a
}

// Next allocates and returns the next internal ID.
func (a *IDAllocator) Next() int64 {
	return a.next.Add(1) - 1
}

// Peek returns the next ID that Next() would return, without consuming it.
// Used when persisting the allocator's high-water mark.
func (a *IDAllocator) Peek() int64 {
	return a.next.Load()
}

// maxScrambledID bounds the ids the scrambler accepts: ids fit in 48 bits,
// comfortably beyond any realistic single-store lifetime allocation count.
const maxScrambledID = int64(1) << 48

// IDScrambler reversibly obfuscates internal IDs for external exposure
// using a process-scoped ChaCha20 keystream (spec §3: "process-scoped
// scrambling"). A tampered or foreign encoding fails its checksum and
// decodes to a non-positive sentinel rather than an error (spec §3, §8).
type IDScrambler struct {
	keystream [6]byte // fixed per process; derived once at construction
	key       [32]byte
}

// NewIDScrambler derives a fresh process-scoped key from a random seed via
// HKDF-SHA256 (golang.org/x/crypto/hkdf), the teacher's derivation style for
// any keyed construction, and a ChaCha20 keystream block used to mask ids.
func NewIDScrambler() (*IDScrambler, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to seed id scrambler: %w", err)
	}
	kdf := hkdf.New(sha256.New, seed, nil, []byte("sensorhub/id-scrambler/v1"))

	s := &IDScrambler{}
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, err
	}

	var nonce [12]byte
	if _, err := io.ReadFull(kdf, nonce[:]); err != nil {
		return nil, err
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(s.key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	var zero, ks [6]byte
	cipher.XORKeyStream(ks[:], zero[:])
	s.keystream = ks
	return s, nil
}

// checksum computes a 16-bit keyed MAC over the 6-byte ciphertext, binding
// it to the scrambler's key so a foreign or tampered value fails
// verification with high probability.
func (s *IDScrambler) checksum(ciphertext [6]byte) uint16 {
	h := fnv.New32a()
	h.Write(s.key[:8])
	h.Write(ciphertext[:])
	sum := h.Sum32()
	return uint16(sum ^ (sum >> 16))
}

// Encode obfuscates a positive internal ID into an opaque external int64:
// the low 48 bits are id XOR keystream, the high 16 bits are a checksum
// binding the ciphertext to this process's key.
func (s *IDScrambler) Encode(id int64) (int64, error) {
	if id <= 0 || id >= maxScrambledID {
		return 0, NewError(ErrKindInvalidRequest, "id out of scrambler range")
	}
	var plain [8]byte
	binary.BigEndian.PutUint64(plain[:], uint64(id))

	var cipher [6]byte
	for i := 0; i < 6; i++ {
		cipher[i] = plain[2+i] ^ s.keystream[i]
	}
	chk := s.checksum(cipher)

	var out [8]byte
	binary.BigEndian.PutUint16(out[0:2], chk)
	copy(out[2:8], cipher[:])
	return int64(binary.BigEndian.Uint64(out[:])), nil
}

// Decode reverses Encode. A tampered or foreign value returns a
// non-positive result, which callers must treat as "not found" rather than
// an error (spec §3).
func (s *IDScrambler) Decode(encoded int64) int64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(encoded))
	chk := binary.BigEndian.Uint16(buf[0:2])
	var cipher [6]byte
	copy(cipher[:], buf[2:8])

	if s.checksum(cipher) != chk {
		return -1
	}

	var plain [8]byte
	for i := 0; i < 6; i++ {
		plain[2+i] = cipher[i] ^ s.keystream[i]
	}
	id := int64(binary.BigEndian.Uint64(plain[:]))
	if id <= 0 {
		return -1
	}
	return id
}
