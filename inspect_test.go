package coggerator

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectStripped(t *testing.T) {
	in := byteFixture(t, filepath.Join(t.TempDir(), "striped.tif"))
	layout := inspectFile(t, in)
	assert.False(t, layout.COG)
	assert.False(t, layout.Tiled)
	assert.False(t, layout.BigTIFF)
	assert.Equal(t, 3, layout.Bands)
	assert.Equal(t, 0, layout.Overviews)
	assert.Equal(t, 0, layout.Masks)
	_, err := layout.NoDataValue()
	assert.Error(t, err)
}

func TestInspectNotTiff(t *testing.T) {
	_, err := Inspect(bytes.NewReader([]byte("GIF89a.........")))
	assert.Error(t, err)
	_, err = Inspect(bytes.NewReader([]byte{'I', 'I', 44, 0, 0, 0, 0, 0}))
	assert.Error(t, err)
}

func ghostBlock(content string) []byte {
	return []byte(fmt.Sprintf("GDAL_STRUCTURAL_METADATA_SIZE=%06d bytes\n%s", len(content), content))
}

func TestGhostLayout(t *testing.T) {
	hdr := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	cases := []struct {
		data []byte
		cog  bool
	}{
		{append(hdr, ghostBlock("LAYOUT=IFDS_BEFORE_DATA\nBLOCK_ORDER=ROW_MAJOR\n")...), true},
		{append(hdr, ghostBlock("BLOCK_ORDER=ROW_MAJOR\n")...), false},
		{append(hdr, []byte("some unrelated bytes in the file")...), false},
		{hdr, false},
	}
	for i, c := range cases {
		cog, err := ghostLayout(bytes.NewReader(c.data), 8)
		require.NoError(t, err, i)
		assert.Equal(t, c.cog, cog, i)
	}

	_, err := ghostLayout(bytes.NewReader(append(hdr, []byte("GDAL_STRUCTURAL_METADATA_SIZE=abcdef bytes\n")...)), 8)
	assert.Error(t, err)
}
