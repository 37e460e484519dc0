package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/yndnr/msgvault-go/internal/core/domain"
	"github.com/yndnr/msgvault-go/pkg/binpack"
)

func jsonBlob(t *testing.T, wrappedKey, nonce, ciphertext, tag []byte, compression string) []byte {
	t.Helper()
	blob, err := json.Marshal(map[string]string{
		"wrappedKey":  base64.StdEncoding.EncodeToString(wrappedKey),
		"nonce":       base64.StdEncoding.EncodeToString(nonce),
		"ciphertext":  base64.StdEncoding.EncodeToString(ciphertext),
		"tag":         base64.StdEncoding.EncodeToString(tag),
		"compression": compression,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return blob
}

// osnpBlob builds an OSNP container with the header object at the given
// offset (8 or 9).
func osnpBlob(t *testing.T, headerOffset int, wrappedKey, nonce, ciphertext, tag []byte, gzipped bool) []byte {
	t.Helper()

	header, err := binpack.Encode(map[string]any{
		"wrappedKey":  wrappedKey,
		"compression": gzipped,
	})
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}

	out := []byte(osnpMagic)
	for len(out) < headerOffset {
		out = append(out, 0x01)
	}
	out = append(out, header...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(ciphertext)))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"json object", []byte(`{"wrappedKey":"x"}`), FormatJSON},
		{"json with leading space", []byte("  \n\t{}"), FormatJSON},
		{"osnp magic", []byte("OSNP\x01\x01\x01\x01\x01"), FormatOSNP},
		{"empty", nil, FormatUnrecognized},
		{"arbitrary binary", []byte{0xff, 0xfe, 0x00, 0x01}, FormatUnrecognized},
		{"json array", []byte(`[1,2,3]`), FormatUnrecognized},
		{"wrong magic", []byte("OSNQxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"), FormatUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.want {
				t.Fatalf("Detect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_JSONEnvelope(t *testing.T) {
	wrappedKey := bytes.Repeat([]byte{0x11}, 256)
	nonce := bytes.Repeat([]byte{0x22}, NonceSize)
	tag := bytes.Repeat([]byte{0x33}, TagSize)
	ciphertext := []byte("opaque bytes")

	env, err := Decode(jsonBlob(t, wrappedKey, nonce, ciphertext, tag, "gzip"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !bytes.Equal(env.WrappedKey, wrappedKey) {
		t.Error("wrapped key mismatch")
	}
	if !bytes.Equal(env.Nonce, nonce) {
		t.Error("nonce mismatch")
	}
	if !bytes.Equal(env.Ciphertext, ciphertext) {
		t.Error("ciphertext mismatch")
	}
	if !bytes.Equal(env.Tag, tag) {
		t.Error("tag mismatch")
	}
	if env.Compression != CompressionGzip {
		t.Errorf("Compression = %q, want gzip", env.Compression)
	}
}

func TestDecode_JSONEnvelopeErrors(t *testing.T) {
	nonce := make([]byte, NonceSize)
	tag := make([]byte, TagSize)

	tests := []struct {
		name string
		data []byte
		want *domain.DomainError
	}{
		{"malformed json", []byte(`{"wrappedKey":`), domain.ErrBadEnvelopeHeader},
		{"missing field", []byte(`{"wrappedKey":"aa=="}`), domain.ErrBadEnvelopeField},
		{"bad base64", []byte(`{"wrappedKey":"!!","nonce":"!!","ciphertext":"!!","tag":"!!"}`), domain.ErrBadEnvelopeField},
		{"short nonce", jsonBlob(t, []byte("k"), nonce[:4], []byte("c"), tag, ""), domain.ErrBadEnvelopeField},
		{"short tag", jsonBlob(t, []byte("k"), nonce, []byte("c"), tag[:8], ""), domain.ErrBadEnvelopeField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_OSNP(t *testing.T) {
	wrappedKey := bytes.Repeat([]byte{0xab}, 256)
	nonce := bytes.Repeat([]byte{0x01}, NonceSize)
	tag := bytes.Repeat([]byte{0x02}, TagSize)
	ciphertext := []byte("binary container payload")

	for _, offset := range []int{9, 8} {
		env, err := Decode(osnpBlob(t, offset, wrappedKey, nonce, ciphertext, tag, true))
		if err != nil {
			t.Fatalf("Decode (header at %d): %v", offset, err)
		}
		if !bytes.Equal(env.WrappedKey, wrappedKey) {
			t.Errorf("header at %d: wrapped key mismatch", offset)
		}
		if !bytes.Equal(env.Nonce, nonce) {
			t.Errorf("header at %d: nonce mismatch", offset)
		}
		if !bytes.Equal(env.Tag, tag) {
			t.Errorf("header at %d: tag mismatch", offset)
		}
		if !bytes.Equal(env.Ciphertext, ciphertext) {
			t.Errorf("header at %d: ciphertext mismatch", offset)
		}
		if env.Compression != CompressionGzip {
			t.Errorf("header at %d: Compression = %q", offset, env.Compression)
		}
	}
}

func TestDecode_OSNPNoCompressionFlag(t *testing.T) {
	nonce := make([]byte, NonceSize)
	tag := make([]byte, TagSize)

	env, err := Decode(osnpBlob(t, 9, []byte("key"), nonce, []byte("ct"), tag, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Compression != CompressionNone {
		t.Fatalf("Compression = %q, want none", env.Compression)
	}
}

func TestDecode_OSNPErrors(t *testing.T) {
	nonce := make([]byte, NonceSize)
	tag := make([]byte, TagSize)
	good := osnpBlob(t, 9, []byte("key"), nonce, []byte("ciphertext"), tag, false)

	truncated := make([]byte, len(good)-5)
	copy(truncated, good)

	// Declared cipher length exceeds the remaining buffer.
	overLength := append([]byte(nil), good...)
	headerEnd := len(good) - 4 - NonceSize - TagSize - len("ciphertext")
	binary.BigEndian.PutUint32(overLength[headerEnd:], 1<<30)

	badHeader := []byte("OSNP\x01\x01\x01\x01\x01")
	badHeader = append(badHeader, 0xc1, 0xc1, 0xc1) // undecodable at 9 and 8
	badHeader = append(badHeader, make([]byte, osnpMinLen)...)

	tests := []struct {
		name string
		data []byte
		want *domain.DomainError
	}{
		{"too short", []byte("OSNP\x01\x01"), domain.ErrTruncatedEnvelope},
		{"truncated ciphertext", truncated, domain.ErrTruncatedEnvelope},
		{"over-length cipher", overLength, domain.ErrTruncatedEnvelope},
		{"undecodable header", badHeader, domain.ErrBadEnvelopeHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_Unrecognized(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0x02})
	if !errors.Is(err, domain.ErrUnrecognizedFormat) {
		t.Fatalf("err = %v, want ErrUnrecognizedFormat", err)
	}
}
