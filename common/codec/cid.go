package codec

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ipfs/go-cid"

	"github.com/ceramicnetwork/go-registry/models"
)

var cidPrefixes = [][]byte{[]byte("Qm"), []byte("baf")}

// DecodeCid converts the ledger's encoding of a CID into its display string. The input is either hex text (with or
// without a 0x prefix) where each byte pair is one ASCII character, or the raw bytes of the string itself.
func DecodeCid(raw []byte) (string, error) {
	if decoded, ok := decodeHex(raw); ok && hasCidPrefix(decoded) {
		return string(decoded), nil
	}
	if hasCidPrefix(raw) && utf8.Valid(raw) {
		return string(raw), nil
	}
	return "", fmt.Errorf("%w: %q", models.ErrInvalidCidEncoding, truncate(raw))
}

// EncodeCid returns the bytes sent to the ledger for a CID or file name.
func EncodeCid(s string) []byte {
	return []byte(s)
}

// EncodeHex renders bytes for JSON transport to the ledger.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeName turns a ledger file name into a display string. Hex encoded names are decoded, anything else is taken
// as UTF-8 with invalid sequences replaced.
func DecodeName(raw []byte) string {
	if decoded, ok := decodeHex(raw); ok && utf8.Valid(decoded) && isPrintable(decoded) {
		return string(decoded)
	}
	return DecodeText(raw)
}

// DecodeText takes a name that is already plain text, such as one read from a gateway manifest, without guessing at
// hex.
func DecodeText(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}

// NormalizeCid parses a CID returned by the content gateway and returns its canonical string form.
func NormalizeCid(s string) (string, error) {
	c, err := cid.Decode(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidCidEncoding, err)
	}
	return c.String(), nil
}

func IsCid(s string) bool {
	return hasCidPrefix([]byte(s))
}

func hasCidPrefix(b []byte) bool {
	for _, p := range cidPrefixes {
		if bytes.HasPrefix(b, p) {
			return true
		}
	}
	return false
}

func decodeHex(raw []byte) ([]byte, bool) {
	s := bytes.TrimPrefix(raw, []byte("0x"))
	if len(s) == 0 || len(s)%2 != 0 {
		return nil, false
	}
	out := make([]byte, hex.DecodedLen(len(s)))
	if _, err := hex.Decode(out, s); err != nil {
		return nil, false
	}
	return out, true
}

func isPrintable(b []byte) bool {
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func truncate(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
