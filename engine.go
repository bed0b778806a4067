package coggerator

import "context"

// DriverName identifies an output format of the raster engine.
type DriverName string

const (
	// COG is the Cloud Optimized GeoTIFF writer. Copying to it computes tiles and overviews.
	COG DriverName = "COG"
	// VRT is the virtual dataset driver. Copying to it only writes an xml description.
	VRT DriverName = "VRT"
)

// Driver is a format writer obtained from an Engine.
type Driver interface {
	Name() DriverName
}

// Engine is the raster processing library doing the actual pixel work.
type Engine interface {
	// Open opens path read-only.
	Open(ctx context.Context, path string) (Dataset, error)
	// Driver looks up a registered writer by name.
	Driver(name DriverName) (Driver, error)
	// Copy creates dst from src with the given driver and creation options.
	// Options a driver does not know about must not fail the copy.
	Copy(ctx context.Context, src Dataset, drv Driver, dst string, options []CreationOption) (Dataset, error)
}

// Dataset is an open raster. Band indexes are 1-based.
type Dataset interface {
	BandCount() int
	SetNoData(band int, nodata float64) error
	ClearNoData(band int) error
	Close() error
}
