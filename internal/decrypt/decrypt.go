// Package decrypt implements the snapshot decryption pipeline: asymmetric
// unwrap of the content key, authenticated symmetric decryption, optional
// gzip decompression, and payload decoding.
//
// Decryption is pure given its inputs. Any failure at any step is terminal
// for the snapshot and never yields partial plaintext.
package decrypt

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/internal/envelope"
	"github.com/yndnr/msgvault-go/pkg/binpack"
	"github.com/yndnr/msgvault-go/pkg/crypto/aead"
)

// ContentKeySize is the symmetric content key size (AES-256).
const ContentKeySize = 32

var gzipMagic = []byte{0x1f, 0x8b}

// ParsePrivateKey parses a PEM-encoded RSA private key, accepting PKCS#8
// and PKCS#1 encodings.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, domain.ErrBadPrivateKey.WithDetails("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, domain.ErrBadPrivateKey.WithDetails("not an RSA key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, domain.ErrBadPrivateKey.WithCause(err)
	}
	return rsaKey, nil
}

// UnwrapContentKey recovers the symmetric content key from the envelope's
// wrapped key using RSA-OAEP with SHA-256.
func UnwrapContentKey(wrapped []byte, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, domain.ErrKeyUnwrap.WithCause(err)
	}
	return key, nil
}

// Open decrypts an envelope to raw payload bytes: unwrap, authenticated
// decryption, then decompression when the envelope declares gzip or the
// decrypted bytes carry the gzip magic.
func Open(env *envelope.Envelope, priv *rsa.PrivateKey) ([]byte, error) {
	contentKey, err := UnwrapContentKey(env.WrappedKey, priv)
	if err != nil {
		return nil, err
	}

	cipher, err := aead.NewAESGCM(contentKey)
	if err != nil {
		return nil, domain.ErrKeyUnwrap.WithDetails("unwrapped key has wrong size").WithCause(err)
	}

	// GCM expects ciphertext||tag.
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plain, err := cipher.OpenWithNonce(env.Nonce, sealed, nil)
	if err != nil {
		return nil, domain.ErrAuthFailed.WithCause(err)
	}

	switch {
	case env.Compression == envelope.CompressionGzip:
		return gunzip(plain)
	case env.Compression == envelope.CompressionNone && bytes.HasPrefix(plain, gzipMagic):
		return gunzip(plain)
	default:
		return plain, nil
	}
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrBadCompressedStream.WithCause(err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, domain.ErrBadCompressedStream.WithCause(err)
	}
	return out, nil
}

// DecodePayload decodes final payload bytes: UTF-8 JSON first, with the
// binary record decoder as the fallback for non-text payloads. The result is
// fully normalized (textual, JSON-compatible).
func DecodePayload(plain []byte) (any, error) {
	var v any
	if err := jsonDecode(plain, &v); err == nil {
		return v, nil
	}

	v, _, err := binpack.Decode(plain)
	if err != nil {
		return nil, domain.ErrPayloadDecode.WithCause(err)
	}
	return binpack.Normalize(v), nil
}

func jsonDecode(data []byte, v *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Trailing garbage means it was not a JSON payload.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

// Records runs the full path from raw snapshot bytes to message records:
// envelope decode, decryption, payload decode, record extraction.
func Records(data []byte, privateKeyPEM []byte) ([]*domain.MessageRecord, error) {
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}

	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	plain, err := Open(env, priv)
	if err != nil {
		return nil, err
	}

	payload, err := DecodePayload(plain)
	if err != nil {
		return nil, err
	}

	records, err := domain.RecordsFromPayload(payload)
	if err != nil {
		return nil, domain.ErrPayloadDecode.WithCause(err)
	}
	return records, nil
}
