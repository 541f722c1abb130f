/*

This file contains the c32check address codec used by the Stacks chain.
Addresses are a version byte plus a hash160, Crockford-base32 encoded with a
double-sha256 checksum and an "S" prefix. There is no maintained Stacks SDK
for Go, so the narrow slice this service needs is implemented here.

*/

package oracle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Crockford alphabet: I, L, O, and U are excluded.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	ADDRESS_VERSION_MAINNET = 22 // renders as the "SP" prefix
	ADDRESS_VERSION_TESTNET = 26 // renders as the "ST" prefix

	addressHashBytes     = 20
	addressChecksumBytes = 4
)

var ErrInvalidAddress = errors.New("invalid stacks address")

// c32Encode converts bytes to Crockford base32. Leading zero bytes are
// preserved one-to-one as leading "0" characters.
func c32Encode(data []byte) string {
	n := new(big.Int).SetBytes(data)
	base := big.NewInt(32)
	mod := new(big.Int)

	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, '0')
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// c32Decode converts a c32 string back into exactly size bytes. The homoglyph
// substitutions (O for 0, L and I for 1) follow the c32 spec.
func c32Decode(s string, size int) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty c32 payload", ErrInvalidAddress)
	}

	n := new(big.Int)
	base := big.NewInt(32)
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'O':
			r = '0'
		case 'L', 'I':
			r = '1'
		}
		idx := strings.IndexRune(c32Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("%w: character %q is not c32", ErrInvalidAddress, r)
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(idx)))
	}

	if n.BitLen() > size*8 {
		return nil, fmt.Errorf("%w: payload overflows %d bytes", ErrInvalidAddress, size)
	}
	out := make([]byte, size)
	n.FillBytes(out)
	return out, nil
}

func addressChecksum(version byte, hash160 []byte) []byte {
	inner := sha256.Sum256(append([]byte{version}, hash160...))
	outer := sha256.Sum256(inner[:])
	return outer[:addressChecksumBytes]
}

// encodeAddress renders a version byte and hash160 as a c32check address.
func encodeAddress(version byte, hash160 []byte) string {
	payload := make([]byte, 0, addressHashBytes+addressChecksumBytes)
	payload = append(payload, hash160...)
	payload = append(payload, addressChecksum(version, hash160)...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload)
}

// decodeAddress parses a c32check principal back into its version byte and
// hash160, verifying the checksum.
func decodeAddress(addr string) (byte, []byte, error) {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	if len(addr) < 3 || addr[0] != 'S' {
		return 0, nil, fmt.Errorf("%w: %q does not start with S", ErrInvalidAddress, addr)
	}

	version := strings.IndexByte(c32Alphabet, addr[1])
	if version < 0 {
		return 0, nil, fmt.Errorf("%w: version character %q", ErrInvalidAddress, addr[1])
	}

	payload, err := c32Decode(addr[2:], addressHashBytes+addressChecksumBytes)
	if err != nil {
		return 0, nil, err
	}

	hash160 := payload[:addressHashBytes]
	if !bytes.Equal(payload[addressHashBytes:], addressChecksum(byte(version), hash160)) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch in %q", ErrInvalidAddress, addr)
	}
	return byte(version), hash160, nil
}
