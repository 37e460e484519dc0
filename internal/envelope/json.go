package envelope

import (
	"encoding/base64"
	"encoding/json"
	"unicode"
	"unicode/utf8"

	"github.com/yndnr/msgvault-go/internal/core/domain"
)

// jsonEnvelope is the wire shape of the text container. All fields are
// standard base64.
type jsonEnvelope struct {
	WrappedKey  string `json:"wrappedKey"`
	Nonce       string `json:"nonce"`
	Ciphertext  string `json:"ciphertext"`
	Tag         string `json:"tag"`
	Compression string `json:"compression,omitempty"`
}

// looksLikeJSON reports whether data is UTF-8 text whose first non-space
// byte opens a JSON object.
func looksLikeJSON(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		return b == '{'
	}
	return false
}

func decodeJSON(data []byte) (*Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return nil, domain.ErrBadEnvelopeHeader.WithCause(err)
	}
	if je.WrappedKey == "" || je.Nonce == "" || je.Ciphertext == "" || je.Tag == "" {
		return nil, domain.ErrBadEnvelopeField.WithDetails("missing required envelope field")
	}

	env := &Envelope{Compression: je.Compression}
	var err error
	if env.WrappedKey, err = b64(je.WrappedKey); err != nil {
		return nil, domain.ErrBadEnvelopeField.WithDetails("wrappedKey").WithCause(err)
	}
	if env.Nonce, err = b64(je.Nonce); err != nil {
		return nil, domain.ErrBadEnvelopeField.WithDetails("nonce").WithCause(err)
	}
	if env.Ciphertext, err = b64(je.Ciphertext); err != nil {
		return nil, domain.ErrBadEnvelopeField.WithDetails("ciphertext").WithCause(err)
	}
	if env.Tag, err = b64(je.Tag); err != nil {
		return nil, domain.ErrBadEnvelopeField.WithDetails("tag").WithCause(err)
	}

	if err := env.validate(); err != nil {
		return nil, err
	}
	return env, nil
}

func b64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
