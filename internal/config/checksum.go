package config

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// isHexAddress reports whether s is a 0x-prefixed 20-byte hex string.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// validChecksum reports whether a hex address satisfies EIP-55. All-lower and
// all-upper addresses carry no checksum and are accepted.
func validChecksum(addr string) bool {
	body := strings.TrimPrefix(addr, "0x")
	lower := strings.ToLower(body)
	if body == lower || body == strings.ToUpper(body) {
		return true
	}
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := h.Sum(nil)

	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= '0' && c <= '9' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		upper := c >= 'A' && c <= 'F'
		if (nibble >= 8) != upper {
			return false
		}
	}
	return true
}
