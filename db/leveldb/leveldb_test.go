package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive(t *testing.T) {
	a, err := OpenMemory()
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	data := []byte("\x89PNG fake image")
	key, fresh, err := a.Save(1, "image/png", data)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, Key(1, data), key)

	again, fresh, err := a.Save(1, "image/png", data)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, key, again)

	_, fresh, err = a.Save(11, "image/png", data)
	require.NoError(t, err)
	assert.True(t, fresh, "archives are scoped per group")

	img, err := a.Load(key)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, int64(1), img.GroupID)
	assert.Equal(t, "image/png", img.MIME)
	assert.Equal(t, data, img.Data)

	n, err := a.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "g1/ prefix does not include g11/")

	img, err = a.Load("g1/missing")
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestCodecRejectsTruncated(t *testing.T) {
	w := newWriter()
	w.writeArchivedImage(&ArchivedImage{Time: 1, GroupID: 2, MIME: "image/gif", Data: []byte("abc")})
	r, err := newReader(w.buf[:len(w.buf)-2])
	require.NoError(t, err)
	_ = r.readArchivedImage()
	assert.Error(t, r.err)

	_, err = newReader(nil)
	assert.Error(t, err)
}
