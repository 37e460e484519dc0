package envelope

import (
	"encoding/binary"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/pkg/binpack"
)

// OSNP container layout:
//
//	[0:4]   magic "OSNP"
//	[4:9]   format/version bytes, not interpreted
//	[9:]    binary-encoded header object (fallback start offset 8 for
//	        blobs written by older exporters)
//	then    4-byte big-endian cipher length
//	        12-byte nonce
//	        16-byte authentication tag
//	        ciphertext of the declared length
const osnpMagic = "OSNP"

// Header object start offsets, primary first.
var osnpHeaderOffsets = [2]int{9, 8}

// osnpMinLen is the smallest buffer that can hold magic, a one-byte header
// and the fixed trailer fields.
const osnpMinLen = len(osnpMagic) + 5 + 4 + NonceSize + TagSize

func decodeOSNP(data []byte) (*Envelope, error) {
	if len(data) < osnpMinLen {
		return nil, domain.ErrTruncatedEnvelope.WithDetails("buffer shorter than minimal OSNP layout")
	}

	header, pos, err := decodeOSNPHeader(data)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		WrappedKey:  header.wrappedKey,
		Compression: header.compression,
	}

	if pos+4 > len(data) {
		return nil, domain.ErrTruncatedEnvelope.WithDetails("missing cipher length")
	}
	cipherLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4

	if pos+NonceSize+TagSize+cipherLen > len(data) {
		return nil, domain.ErrTruncatedEnvelope.WithDetails("buffer shorter than declared cipher length")
	}

	env.Nonce = data[pos : pos+NonceSize]
	pos += NonceSize
	env.Tag = data[pos : pos+TagSize]
	pos += TagSize
	env.Ciphertext = data[pos : pos+cipherLen]

	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

type osnpHeader struct {
	wrappedKey  []byte
	compression string
}

// decodeOSNPHeader decodes the header object at the primary offset, falling
// back to the secondary offset. Failure at both offsets is a format error.
func decodeOSNPHeader(data []byte) (*osnpHeader, int, error) {
	var lastErr error
	for _, off := range osnpHeaderOffsets {
		v, next, err := binpack.DecodeAt(data, off)
		if err != nil {
			lastErr = err
			continue
		}
		h, err := headerFromValue(v)
		if err != nil {
			lastErr = err
			continue
		}
		return h, next, nil
	}
	return nil, 0, domain.ErrBadEnvelopeHeader.WithCause(lastErr)
}

func headerFromValue(v any) (*osnpHeader, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, domain.ErrBadEnvelopeHeader.WithDetails("header is not an object")
	}

	h := &osnpHeader{}
	switch wk := obj["wrappedKey"].(type) {
	case []byte:
		h.wrappedKey = wk
	case string:
		h.wrappedKey = []byte(wk)
	default:
		return nil, domain.ErrBadEnvelopeHeader.WithDetails("header has no wrappedKey")
	}

	switch c := obj["compression"].(type) {
	case bool:
		if c {
			h.compression = CompressionGzip
		}
	case string:
		h.compression = c
	}

	return h, nil
}
