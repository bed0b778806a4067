package coggerator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

const (
	subfileTypeReducedImage = 1
	subfileTypeMask         = 4
)

// ifd holds the subset of tags needed to describe the layout of a tiff file.
type ifd struct {
	SubfileType     uint32   `tiff:"field,tag=254"`
	ImageWidth      uint64   `tiff:"field,tag=256"`
	ImageLength     uint64   `tiff:"field,tag=257"`
	Compression     uint16   `tiff:"field,tag=259"`
	SamplesPerPixel uint16   `tiff:"field,tag=277"`
	TileWidth       uint16   `tiff:"field,tag=322"`
	TileLength      uint16   `tiff:"field,tag=323"`
	TileOffsets     []uint64 `tiff:"field,tag=324"`
	NoData          string   `tiff:"field,tag=42113"`
}

// Layout describes how a tiff file is organized on disk.
type Layout struct {
	BigTIFF bool
	// COG is set when gdal's structural metadata declares the IFDs are
	// written before the imagery.
	COG         bool
	Width       int
	Height      int
	Bands       int
	Tiled       bool
	TileWidth   int
	TileHeight  int
	Compression uint16
	Overviews   int
	Masks       int
	// NoData is the raw GDAL_NODATA tag of the full resolution image.
	NoData    string
	HasNoData bool
}

// NoDataValue parses the GDAL_NODATA tag.
func (l Layout) NoDataValue() (float64, error) {
	if !l.HasNoData {
		return 0, fmt.Errorf("no nodata tag")
	}
	return strconv.ParseFloat(l.NoData, 64)
}

// Inspect reads the header and IFDs of the tiff in r. It does not read any imagery.
func Inspect(r tiff.ReadAtReadSeeker) (*Layout, error) {
	hdr := make([]byte, 4)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var order binary.ByteOrder
	switch string(hdr[0:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unknown byte order")
	}
	layout := &Layout{}
	ghostOffset := int64(8)
	switch order.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		layout.BigTIFF = true
		ghostOffset = 16
	default:
		return nil, fmt.Errorf("not a tiff file")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("parse tiff: %w", err)
	}
	tifds := tif.IFDs()
	if len(tifds) == 0 {
		return nil, fmt.Errorf("no ifds")
	}
	for i := range tifds {
		cur := ifd{}
		if err := tiff.UnmarshalIFD(tifds[i], &cur); err != nil {
			return nil, fmt.Errorf("ifd %d: %w", i, err)
		}
		switch {
		case i == 0:
			if cur.SubfileType != 0 {
				return nil, fmt.Errorf("first ifd is not a full resolution image (type=%d)", cur.SubfileType)
			}
			layout.Width, layout.Height = int(cur.ImageWidth), int(cur.ImageLength)
			layout.Bands = int(cur.SamplesPerPixel)
			layout.Tiled = len(cur.TileOffsets) > 0
			layout.TileWidth, layout.TileHeight = int(cur.TileWidth), int(cur.TileLength)
			layout.Compression = cur.Compression
			if tifds[i].GetField(42113) != nil {
				layout.NoData, layout.HasNoData = cur.NoData, true
			}
		case cur.SubfileType&subfileTypeMask != 0:
			layout.Masks++
		case cur.SubfileType&subfileTypeReducedImage != 0:
			layout.Overviews++
		}
	}
	layout.COG, err = ghostLayout(r, ghostOffset)
	if err != nil {
		return nil, err
	}
	return layout, nil
}

var (
	ghostPrefix          = []byte("GDAL_STRUCTURAL_METADATA_SIZE=")
	ghostLayoutIFDsFirst = []byte("LAYOUT=IFDS_BEFORE_DATA")
)

// ghostLayout looks for the structural metadata block gdal writes right after the
// tiff header of COG files.
func ghostLayout(r io.ReaderAt, offset int64) (bool, error) {
	// GDAL_STRUCTURAL_METADATA_SIZE=XXXXXX bytes\n
	head := make([]byte, len(ghostPrefix)+13)
	n, err := r.ReadAt(head, offset)
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read structural metadata: %w", err)
	}
	if n < len(head) || !bytes.HasPrefix(head, ghostPrefix) {
		return false, nil
	}
	sz, err := strconv.Atoi(string(head[len(ghostPrefix) : len(ghostPrefix)+6]))
	if err != nil {
		return false, fmt.Errorf("invalid structural metadata size: %w", err)
	}
	body := make([]byte, sz)
	n, err = r.ReadAt(body, offset+int64(len(head)))
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read structural metadata: %w", err)
	}
	return bytes.Contains(body[:n], ghostLayoutIFDsFirst), nil
}
