package coggerator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

const fixtureSize = 1024

// byteFixture creates a 3 band 8 bit tif with a gradient in each band.
func byteFixture(t *testing.T, name string) string {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, name, 3, godal.Byte, fixtureSize, fixtureSize)
	require.NoError(t, err)
	buf := make([]byte, fixtureSize*fixtureSize)
	for b, bnd := range ds.Bands() {
		for i := range buf {
			buf[i] = byte((i + b*50) % 256)
		}
		require.NoError(t, bnd.Write(0, 0, buf, fixtureSize, fixtureSize))
	}
	require.NoError(t, ds.Close())
	return name
}

// stripesFixture creates a float32 tif whose columns alternate between
// lo and hi.
func stripesFixture(t *testing.T, name string, bands int, lo, hi float32) string {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, name, bands, godal.Float32, fixtureSize, fixtureSize)
	require.NoError(t, err)
	buf := make([]float32, fixtureSize*fixtureSize)
	for i := range buf {
		if i%2 == 0 {
			buf[i] = lo
		} else {
			buf[i] = hi
		}
	}
	for _, bnd := range ds.Bands() {
		require.NoError(t, bnd.Write(0, 0, buf, fixtureSize, fixtureSize))
	}
	require.NoError(t, ds.Close())
	return name
}

func gdalConvert(t *testing.T, conv *Converter, req Request) string {
	t.Helper()
	cfg, err := Validate(context.Background(), req)
	require.NoError(t, err)
	out, err := conv.Convert(context.Background(), cfg)
	require.NoError(t, err)
	return out
}

func inspectFile(t *testing.T, name string) *Layout {
	t.Helper()
	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	layout, err := Inspect(f)
	require.NoError(t, err)
	return layout
}

func TestGDALDefaultConversion(t *testing.T) {
	dir := t.TempDir()
	in := byteFixture(t, filepath.Join(dir, "rgb.tif"))
	conv, err := NewConverter(NewGDAL(), TempDir(dir))
	require.NoError(t, err)
	out := gdalConvert(t, conv, Request{InputPath: in, OutputPath: filepath.Join(dir, "rgb_cog.tif")})

	layout := inspectFile(t, out)
	assert.True(t, layout.COG)
	assert.True(t, layout.Tiled)
	assert.Equal(t, 512, layout.TileWidth)
	assert.Equal(t, 512, layout.TileHeight)
	assert.Equal(t, 3, layout.Bands)
	assert.Equal(t, fixtureSize, layout.Width)
	assert.Equal(t, uint16(5), layout.Compression) // LZW
	assert.GreaterOrEqual(t, layout.Overviews, 1)
	assert.False(t, layout.HasNoData)

	ds, err := godal.Open(out)
	require.NoError(t, err)
	defer ds.Close()
	for _, bnd := range ds.Bands() {
		_, ok := bnd.NoData()
		assert.False(t, ok)
		assert.Equal(t, 512, bnd.Structure().BlockSizeX)
	}

	// only the output is left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGDALNoData(t *testing.T) {
	dir := t.TempDir()
	in := stripesFixture(t, filepath.Join(dir, "in.tif"), 3, 1, 2)
	nd := -9999.0
	for _, strategy := range []Strategy{TwoPhase, Direct} {
		conv, err := NewConverter(NewGDAL(), withStrategy(strategy), TempDir(dir))
		require.NoError(t, err)
		out := gdalConvert(t, conv, Request{
			InputPath: in, OutputPath: filepath.Join(dir, strategy.String()+".tif"), NoData: &nd,
		})

		if strategy == TwoPhase {
			// inherited from the vrt, hence written as a tiff tag
			v, err := inspectFile(t, out).NoDataValue()
			require.NoError(t, err)
			assert.Equal(t, -9999.0, v)
		}

		ds, err := godal.Open(out)
		require.NoError(t, err)
		require.Len(t, ds.Bands(), 3)
		for _, bnd := range ds.Bands() {
			v, ok := bnd.NoData()
			assert.True(t, ok, strategy)
			assert.Equal(t, -9999.0, v, strategy)
		}
		require.NoError(t, ds.Close())
	}
}

// With columns alternating between the nodata value and 100, an averaged overview
// must only see the valid pixels. The direct strategy tags nodata too late and
// blends both values.
func TestGDALOverviewsExcludeNoData(t *testing.T) {
	dir := t.TempDir()
	in := stripesFixture(t, filepath.Join(dir, "in.tif"), 1, 0, 100)
	nd := 0.0
	expected := map[Strategy]float32{TwoPhase: 100, Direct: 50}
	for strategy, want := range expected {
		conv, err := NewConverter(NewGDAL(), withStrategy(strategy), TempDir(dir))
		require.NoError(t, err)
		out := gdalConvert(t, conv, Request{
			InputPath: in, OutputPath: filepath.Join(dir, strategy.String()+".tif"),
			NoData: &nd, Resampling: "AVERAGE",
		})
		ds, err := godal.Open(out)
		require.NoError(t, err)
		ovrs := ds.Bands()[0].Overviews()
		require.NotEmpty(t, ovrs)
		buf := make([]float32, 16)
		require.NoError(t, ovrs[0].Read(0, 0, buf, 4, 4))
		for _, px := range buf {
			assert.Equal(t, want, px, strategy)
		}
		require.NoError(t, ds.Close())
	}
}

func TestGDALErrors(t *testing.T) {
	dir := t.TempDir()
	eng := NewGDAL()
	_, err := eng.Driver("NOT_A_DRIVER")
	assert.Error(t, err)

	notTif := touch(t, filepath.Join(dir, "garbage.tif"))
	conv, err := NewConverter(eng, TempDir(dir))
	require.NoError(t, err)
	cfg, err := Validate(context.Background(), Request{InputPath: notTif, OutputPath: filepath.Join(dir, "out.tif")})
	require.NoError(t, err)
	_, err = conv.Convert(context.Background(), cfg)
	var eerr EngineError
	assert.ErrorAs(t, err, &eerr)
	assert.NotContains(t, Message(err), "\n")
}

func TestGDALErrorHandler(t *testing.T) {
	eh := errorHandler(context.Background())
	assert.NoError(t, eh(godal.CE_Debug, 0, "debug"))
	assert.NoError(t, eh(godal.CE_Warning, 6, "driver VRT does not support creation option COMPRESS"))
	err := eh(godal.CE_Failure, 4, "no such file")
	assert.EqualError(t, err, "gdal 4: no such file")
}

// The VRT driver warns about every COG creation option it does not know. These
// warnings must not abort the intermediate copy.
func TestGDALCopyVRTWithCreationOptions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	in := byteFixture(t, filepath.Join(dir, "rgb.tif"))
	cfg, err := Validate(ctx, Request{InputPath: in, OutputPath: filepath.Join(dir, "out.tif")})
	require.NoError(t, err)

	eng := NewGDAL()
	src, err := eng.Open(ctx, in)
	require.NoError(t, err)
	defer src.Close()
	drv, err := eng.Driver(VRT)
	require.NoError(t, err)
	vrt, err := eng.Copy(ctx, src, drv, filepath.Join(dir, "in.vrt"), cfg.CreationOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, vrt.BandCount())
	require.NoError(t, vrt.SetNoData(1, 0))
	require.NoError(t, vrt.Close())
}
