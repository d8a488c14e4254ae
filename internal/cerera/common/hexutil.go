package common

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
)

// Has0xPrefix reports whether str begins with "0x" or "0X".
func Has0xPrefix(str string) bool {
	return len(str) >= 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X')
}

// FromHex returns the bytes represented by the hexadecimal string s.
// s may be prefixed with "0x"; an odd-length string is left-padded.
func FromHex(s string) []byte {
	if Has0xPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}

// Bytes marshals/unmarshals as a JSON string with 0x prefix.
// The empty slice marshals as "0x".
type Bytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	result := make([]byte, len(b)*2+2)
	copy(result, "0x")
	hex.Encode(result[2:], b)
	return result, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(input []byte) error {
	if len(input) < 2 || input[0] != '"' || input[len(input)-1] != '"' {
		return fmt.Errorf("non-string value cannot unmarshal into Bytes")
	}
	return b.UnmarshalText(input[1 : len(input)-1])
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes) UnmarshalText(input []byte) error {
	raw := string(input)
	if !Has0xPrefix(raw) {
		return fmt.Errorf("hex string without 0x prefix")
	}
	dec := make([]byte, len(raw[2:])/2)
	if _, err := hex.Decode(dec, []byte(raw[2:])); err != nil {
		return err
	}
	*b = dec
	return nil
}

// String returns the hex encoding of b.
func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// Uint64 marshals/unmarshals as a JSON string with 0x prefix.
// The zero value marshals as "0x0".
type Uint64 uint64

// MarshalText implements encoding.TextMarshaler.
func (i Uint64) MarshalText() ([]byte, error) {
	buf := make([]byte, 2, 10)
	copy(buf, "0x")
	buf = strconv.AppendUint(buf, uint64(i), 16)
	return buf, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Uint64) UnmarshalJSON(input []byte) error {
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		return i.UnmarshalText(input[1 : len(input)-1])
	}
	// Plain JSON numbers are tolerated for compatibility.
	dec, err := strconv.ParseUint(string(input), 10, 64)
	if err != nil {
		return err
	}
	*i = Uint64(dec)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Uint64) UnmarshalText(input []byte) error {
	raw := string(input)
	if Has0xPrefix(raw) {
		dec, err := strconv.ParseUint(raw[2:], 16, 64)
		if err != nil {
			return err
		}
		*i = Uint64(dec)
		return nil
	}
	dec, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}
	*i = Uint64(dec)
	return nil
}

// String returns the hex encoding of i.
func (i Uint64) String() string {
	return "0x" + strconv.FormatUint(uint64(i), 16)
}

// Big marshals/unmarshals as a JSON string with 0x prefix.
// The zero value marshals as "0x0".
type Big big.Int

// MarshalText implements encoding.TextMarshaler.
func (b Big) MarshalText() ([]byte, error) {
	v := (*big.Int)(&b)
	if v.Sign() < 0 {
		return []byte("-0x" + v.Text(16)[1:]), nil
	}
	return []byte("0x" + v.Text(16)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Big) UnmarshalJSON(input []byte) error {
	if len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"' {
		return b.UnmarshalText(input[1 : len(input)-1])
	}
	i, ok := new(big.Int).SetString(string(input), 10)
	if !ok {
		return fmt.Errorf("invalid number: %s", input)
	}
	*b = Big(*i)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Big) UnmarshalText(input []byte) error {
	raw := string(input)
	base := 10
	if Has0xPrefix(raw) {
		raw = raw[2:]
		base = 16
	}
	i, ok := new(big.Int).SetString(raw, base)
	if !ok {
		return fmt.Errorf("invalid number: %s", input)
	}
	*b = Big(*i)
	return nil
}

// ToInt converts b to a big.Int.
func (b *Big) ToInt() *big.Int {
	return (*big.Int)(b)
}

// String returns the hex encoding of b.
func (b *Big) String() string {
	text, _ := (*b).MarshalText()
	return string(text)
}

// UnmarshalFixedText decodes the input as a string with 0x prefix. The
// length of out determines the required input length.
func UnmarshalFixedText(typname string, input, out []byte) error {
	raw := string(input)
	if !Has0xPrefix(raw) {
		return fmt.Errorf("hex string without 0x prefix for %s", typname)
	}
	raw = raw[2:]
	if len(raw)/2 != len(out) {
		return fmt.Errorf("hex string has length %d, want %d for %s", len(raw), len(out)*2, typname)
	}
	_, err := hex.Decode(out, []byte(raw))
	return err
}

// UnmarshalFixedJSON decodes the input as a JSON string with 0x prefix.
// The length of out determines the required input length.
func UnmarshalFixedJSON(typ reflect.Type, input, out []byte) error {
	if len(input) < 2 || input[0] != '"' || input[len(input)-1] != '"' {
		return fmt.Errorf("non-string value cannot unmarshal into %s", typ.String())
	}
	return UnmarshalFixedText(typ.String(), input[1:len(input)-1], out)
}

// FloatToBigInt converts a token amount to its fixed-point integer
// representation (7 decimal places).
func FloatToBigInt(val float64) *big.Int {
	bigval := new(big.Float)
	bigval.SetFloat64(val)

	coin := new(big.Float)
	coin.SetInt(big.NewInt(10000000))

	bigval.Mul(bigval, coin)

	result := new(big.Int)
	bigval.Int(result)

	return result
}
