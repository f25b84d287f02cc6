package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	values := []any{
		map[string]any{"payload": "subscribe alice 20", "nested": map[string]any{"n": float64(3)}},
		[]any{"a", float64(1), true, nil},
		"route not implemented",
		float64(42.5),
		true,
		nil,
	}

	for _, v := range values {
		data, err := Encode(v)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecodeRejectsInvalidInput(t *testing.T) {
	t.Run("invalid_utf8", func(t *testing.T) {
		_, err := Decode([]byte{0xff, 0xfe, 0xfd})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDecode))

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, StageUTF8, decodeErr.Stage)
	})

	t.Run("invalid_json", func(t *testing.T) {
		_, err := Decode([]byte("subscribe alice 20"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDecode)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, StageJSON, decodeErr.Stage)
	})
}

func TestHexJSON(t *testing.T) {
	payload, err := EncodeHexJSON(map[string]any{"payload": "check bob"})
	require.NoError(t, err)
	assert.Equal(t, "0x", payload[:2])

	got, err := DecodeHexJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"payload": "check bob"}, got)
}

func TestDecodeHexText(t *testing.T) {
	text, err := DecodeHexText(EncodeHex([]byte("total")))
	require.NoError(t, err)
	assert.Equal(t, "total", text)

	_, err = DecodeHexText("0xzz")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeHexText("746f74616c")
	assert.ErrorIs(t, err, ErrDecode, "missing 0x prefix")

	_, err = DecodeHexText(EncodeHex([]byte{0xc3, 0x28}))
	assert.ErrorIs(t, err, ErrDecode)
}
