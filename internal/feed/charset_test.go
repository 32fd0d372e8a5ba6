package feed

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReader_UTF8Passthrough(t *testing.T) {
	src := strings.NewReader("héllo")

	for _, name := range []string{"", "utf-8", "UTF-8", "utf8"} {
		r, err := DecodeReader(src, name)
		require.NoError(t, err)
		assert.Same(t, io.Reader(src), r, "charset %q should not wrap", name)
	}
}

func TestDecodeReader_Latin1(t *testing.T) {
	// "José" in ISO-8859-1: é is the single byte 0xE9.
	raw := []byte{'J', 'o', 's', 0xE9}

	r, err := DecodeReader(strings.NewReader(string(raw)), "iso-8859-1")
	require.NoError(t, err)

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "José", string(decoded))
}

func TestDecodeReader_Windows1252(t *testing.T) {
	// 0x93/0x94 are curly quotes in windows-1252.
	raw := []byte{0x93, 'o', 'k', 0x94}

	r, err := DecodeReader(strings.NewReader(string(raw)), "windows-1252")
	require.NoError(t, err)

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "“ok”", string(decoded))
}

func TestDecodeReader_UnknownCharset(t *testing.T) {
	_, err := DecodeReader(strings.NewReader("x"), "ebcdic-37")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: unsupported charset")
}
