// Package envelope detects and parses the two encrypted snapshot container
// formats into a normalized envelope.
//
// A snapshot blob is either a JSON envelope (all fields base64) or an OSNP
// binary container. Classification is an explicit two-step check; parse
// failure at any step aborts before any decryption or write happens.
package envelope

import (
	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// Sizes fixed by the container formats.
const (
	NonceSize = 12
	TagSize   = 16
)

// Compression values carried by envelopes.
const (
	CompressionNone = ""
	CompressionGzip = "gzip"
)

// Format tags the container format of a snapshot blob.
type Format int

const (
	FormatUnrecognized Format = iota
	FormatJSON
	FormatOSNP
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatOSNP:
		return "osnp"
	default:
		return "unrecognized"
	}
}

// Envelope is the normalized encrypted-container tuple shared by both
// formats. All byte fields are raw (decoded from base64 for JSON envelopes).
type Envelope struct {
	// WrappedKey is the symmetric content key encrypted under the
	// recipient's asymmetric public key.
	WrappedKey []byte

	// Nonce is the 96-bit AEAD nonce.
	Nonce []byte

	// Ciphertext is the encrypted payload, without the tag.
	Ciphertext []byte

	// Tag is the 128-bit authentication tag.
	Tag []byte

	// Compression is the declared payload compression, empty when absent.
	// When empty the decrypted bytes may still be gzip; the crypto engine
	// sniffs the gzip magic in that case.
	Compression string
}

// Detect classifies raw snapshot bytes without committing to a full parse.
func Detect(data []byte) Format {
	if looksLikeJSON(data) {
		return FormatJSON
	}
	if len(data) >= len(osnpMagic) && string(data[:len(osnpMagic)]) == osnpMagic {
		return FormatOSNP
	}
	return FormatUnrecognized
}

// Decode parses raw snapshot bytes into an Envelope. Any failure yields a
// single format error; there is no partial outcome.
func Decode(data []byte) (*Envelope, error) {
	switch Detect(data) {
	case FormatJSON:
		return decodeJSON(data)
	case FormatOSNP:
		return decodeOSNP(data)
	default:
		return nil, domain.ErrUnrecognizedFormat
	}
}

// validate checks the fixed-size fields shared by both formats.
func (e *Envelope) validate() error {
	if len(e.WrappedKey) == 0 {
		return domain.ErrBadEnvelopeField.WithDetails("empty wrapped key")
	}
	if len(e.Nonce) != NonceSize {
		return domain.ErrBadEnvelopeField.WithDetails("nonce must be 12 bytes")
	}
	if len(e.Tag) != TagSize {
		return domain.ErrBadEnvelopeField.WithDetails("tag must be 16 bytes")
	}
	return nil
}
