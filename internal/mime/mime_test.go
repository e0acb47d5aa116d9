package mime

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 lossless webp
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestCheckImage(t *testing.T) {
	webp, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)

	typ, ok := CheckImage(webp)
	assert.True(t, ok)
	assert.Equal(t, WebP, typ)

	typ, ok = CheckImage([]byte("GIF89a\x01\x00\x01\x00"))
	assert.True(t, ok)
	assert.Equal(t, "image/gif", typ)

	typ, ok = CheckImage([]byte("plain words"))
	assert.False(t, ok)
	assert.Contains(t, typ, "text/plain")
}

func TestToPNG(t *testing.T) {
	webp, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)

	out, err := ToPNG(webp)
	require.NoError(t, err)
	typ, _ := CheckImage(out)
	assert.Equal(t, "image/png", typ)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Width)
	assert.Equal(t, 1, cfg.Height)

	_, err = ToPNG([]byte("GIF89a"))
	assert.ErrorIs(t, err, ErrNotImage)
}
