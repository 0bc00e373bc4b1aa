package chain

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddressInput is returned for malformed address or seed inputs.
var ErrInvalidAddressInput = errors.New("invalid address input")

// AddressLen is the byte width of a chain account address.
const AddressLen = 32

// Address is a 32-byte chain account identifier.
type Address [AddressLen]byte

// String returns the base58 text form of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ParseAddress decodes a base58 address, enforcing the 32-byte width.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddressInput, err)
	}
	if len(raw) != AddressLen {
		return Address{}, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidAddressInput, AddressLen, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// Seed tags of the escrow program's derived accounts. The byte encoding is
// fixed by the program and must match across clients: tag bytes, then
// little-endian u64 post id for posts; tag bytes, post address bytes and
// applicant address bytes for help requests.
var (
	postSeedTag        = []byte("post")
	helpRequestSeedTag = []byte("help_request")
)

// derivedMarker terminates the seed hash input, per the derived-address
// convention of the ledger.
var derivedMarker = []byte("ProgramDerivedAddress")

// Deriver computes deterministic account addresses for the escrow program.
// It is pure: same inputs, same program, same address on every platform.
type Deriver struct {
	programID Address
}

// NewDeriver creates a deriver bound to the given program identifier.
func NewDeriver(programID Address) *Deriver {
	return &Deriver{programID: programID}
}

// PostAddress derives the post account address for a post id.
func (d *Deriver) PostAddress(postID uint64) (Address, error) {
	var idSeed [8]byte
	binary.LittleEndian.PutUint64(idSeed[:], postID)
	return d.derive([][]byte{postSeedTag, idSeed[:]})
}

// HelpRequestAddress derives the per-applicant help request account address.
func (d *Deriver) HelpRequestAddress(postID uint64, applicant Address) (Address, error) {
	postAddr, err := d.PostAddress(postID)
	if err != nil {
		return Address{}, err
	}
	return d.derive([][]byte{helpRequestSeedTag, postAddr[:], applicant[:]})
}

// derive walks bump seeds from 255 downward and returns the first candidate
// hash that does not decode as a curve point. Derived accounts must be
// off-curve so no private key can ever sign for them.
func (d *Deriver) derive(seeds [][]byte) (Address, error) {
	for _, seed := range seeds {
		if len(seed) == 0 || len(seed) > AddressLen {
			return Address{}, fmt.Errorf("%w: seed length %d", ErrInvalidAddressInput, len(seed))
		}
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(d.programID[:])
		h.Write(derivedMarker)

		var candidate Address
		copy(candidate[:], h.Sum(nil))

		if _, err := new(edwards25519.Point).SetBytes(candidate[:]); err != nil {
			// Not a valid curve point: this is the derived address.
			return candidate, nil
		}
	}
	return Address{}, fmt.Errorf("%w: no off-curve address for seeds", ErrInvalidAddressInput)
}
