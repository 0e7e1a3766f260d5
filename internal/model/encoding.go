package model

import (
	"encoding/base64"
	"strings"
)

// StringList is a comma-or-semicolon separated list of values, as found in
// config fields like ignore-routes, dns-servers, and dns-suffixes.
type StringList []string

// ParseStringList splits s on both ',' and ';', trims surrounding
// whitespace from each element, and drops empty elements produced by
// repeated separators.
func ParseStringList(s string) StringList {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make(StringList, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// String renders the list with ',' separators, normalizing whatever
// separator the source used.
func (l StringList) String() string {
	return strings.Join(l, ",")
}

// EncryptedString wraps a secret so that it never prints in the clear; its
// debug/string rendering is always "****". The value itself is held as
// plain text in memory; only its String/GoString renderings are masked,
// which keeps it out of logs.
type EncryptedString struct {
	plain string
}

// NewEncryptedString wraps a plaintext secret.
func NewEncryptedString(plain string) *EncryptedString {
	return &EncryptedString{plain: plain}
}

// DecodeBase64Password decodes the CLI/config-edge base64 encoding of the
// password field and wraps the result.
func DecodeBase64Password(encoded string) (*EncryptedString, error) {
	if encoded == "" {
		return NewEncryptedString(""), nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return NewEncryptedString(string(raw)), nil
}

// Reveal returns the plaintext value.
func (e *EncryptedString) Reveal() string {
	if e == nil {
		return ""
	}
	return e.plain
}

// String implements fmt.Stringer, masking the value for logs.
func (e *EncryptedString) String() string {
	return "****"
}

// GoString implements fmt.GoStringer, masking the value for %#v too.
func (e *EncryptedString) GoString() string {
	return "****"
}
