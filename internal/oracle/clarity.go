/*

This file contains the slice of the Clarity wire format this service speaks:
uint arguments for contract calls, and response-wrapped tuples of uints coming
back from read-only calls. Values are a one-byte type tag followed by the
type-specific body; uints are 16-byte big-endian.

*/

package oracle

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	clarityTypeUInt         = 0x01
	clarityTypeResponseOk   = 0x07
	clarityTypeResponseErr  = 0x08
	clarityTypeOptionalNone = 0x09
	clarityTypeOptionalSome = 0x0a
	clarityTypeTuple        = 0x0c

	clarityUintBytes = 16
)

var ErrClarityDecode = errors.New("cannot decode clarity value")

// encodeClarityUint serializes a non-negative integer as a Clarity uint.
func encodeClarityUint(v int64) ([]byte, error) {
	if v < 0 {
		return nil, fmt.Errorf("clarity uint cannot hold negative value %d", v)
	}
	out := make([]byte, 1+clarityUintBytes)
	out[0] = clarityTypeUInt
	binary.BigEndian.PutUint64(out[9:], uint64(v))
	return out, nil
}

type clarityReader struct {
	buf []byte
	pos int
}

func (r *clarityReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrClarityDecode, r.pos)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *clarityReader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *clarityReader) uint() (int64, error) {
	body, err := r.take(clarityUintBytes)
	if err != nil {
		return 0, err
	}
	for _, b := range body[:8] {
		if b != 0 {
			return 0, fmt.Errorf("%w: uint %x overflows int64", ErrClarityDecode, body)
		}
	}
	if body[8]&0x80 != 0 {
		return 0, fmt.Errorf("%w: uint %x overflows int64", ErrClarityDecode, body)
	}
	return int64(binary.BigEndian.Uint64(body[8:])), nil
}

// decodeResponseTuple parses the hex result of a read-only call expected to
// be (ok (tuple ...)) with uint-valued entries, optionally behind (some ...).
// An (err ...) response surfaces as an error carrying the raw payload.
func decodeResponseTuple(hexResult string) (map[string]int64, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: result is not hex: %s", ErrClarityDecode, err)
	}

	r := &clarityReader{buf: raw}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case clarityTypeResponseOk:
		tag, err = r.byte()
		if err != nil {
			return nil, err
		}
	case clarityTypeResponseErr:
		return nil, fmt.Errorf("%w: contract returned (err 0x%x)", ErrClarityDecode, r.buf[r.pos:])
	}

	if tag == clarityTypeOptionalSome {
		tag, err = r.byte()
		if err != nil {
			return nil, err
		}
	}
	if tag == clarityTypeOptionalNone {
		return nil, fmt.Errorf("%w: contract holds no data yet", ErrClarityDecode)
	}
	if tag != clarityTypeTuple {
		return nil, fmt.Errorf("%w: expected tuple, got type 0x%02x", ErrClarityDecode, tag)
	}

	countBytes, err := r.take(4)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(countBytes)

	entries := make(map[string]int64, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := r.byte()
		if err != nil {
			return nil, err
		}
		name, err := r.take(int(nameLen))
		if err != nil {
			return nil, err
		}

		tag, err := r.byte()
		if err != nil {
			return nil, err
		}
		if tag != clarityTypeUInt {
			return nil, fmt.Errorf("%w: tuple entry %q is type 0x%02x, want uint", ErrClarityDecode, name, tag)
		}
		v, err := r.uint()
		if err != nil {
			return nil, err
		}
		entries[string(name)] = v
	}

	return entries, nil
}
