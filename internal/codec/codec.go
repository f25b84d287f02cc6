// Package codec converts between the opaque payloads exchanged with the rollup
// server and structured values.
//
// Payloads travel as 0x-prefixed hex strings. The bytes they carry are UTF-8
// JSON text for advance inputs, notices and reports, and plain UTF-8 text for
// inspect routes.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("codec: decode failed")

// DecodeError describes why a payload could not be interpreted.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec: invalid %s", e.Stage)
	}
	return fmt.Sprintf("codec: invalid %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

const (
	StageHex  = "hex"
	StageUTF8 = "utf-8"
	StageJSON = "json"
)

// Decode parses UTF-8 JSON text into a generic value.
func Decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Stage: StageUTF8}
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}
	return value, nil
}

// Encode serializes value as UTF-8 JSON text.
func Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

// DecodeHex decodes a 0x-prefixed hex string.
func DecodeHex(payload string) ([]byte, error) {
	data, err := hexutil.Decode(payload)
	if err != nil {
		return nil, &DecodeError{Stage: StageHex, Err: err}
	}
	return data, nil
}

// EncodeHex encodes bytes as a 0x-prefixed hex string.
func EncodeHex(data []byte) string {
	return hexutil.Encode(data)
}

// DecodeHexJSON decodes a hex payload carrying UTF-8 JSON text.
func DecodeHexJSON(payload string) (any, error) {
	data, err := DecodeHex(payload)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// EncodeHexJSON is the inverse of DecodeHexJSON.
func EncodeHexJSON(value any) (string, error) {
	data, err := Encode(value)
	if err != nil {
		return "", err
	}
	return EncodeHex(data), nil
}

// DecodeHexText decodes a hex payload carrying plain UTF-8 text.
func DecodeHexText(payload string) (string, error) {
	data, err := DecodeHex(payload)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", &DecodeError{Stage: StageUTF8}
	}
	return string(data), nil
}
