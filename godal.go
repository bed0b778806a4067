package coggerator

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"go.airbusds-geo.com/log"
	"go.uber.org/zap"
)

// GDAL is an Engine backed by godal. Drivers must have been registered beforehand,
// typically once at startup with godal.RegisterAll().
type GDAL struct {
	configOptions []string
}

type GDALOption func(g *GDAL)

// GDALConfig sets gdal configuration options (e.g. "GDAL_CACHEMAX=512") for every
// open and copy issued by the engine.
func GDALConfig(keyvals ...string) GDALOption {
	return func(g *GDAL) {
		g.configOptions = append(g.configOptions, keyvals...)
	}
}

func NewGDAL(opts ...GDALOption) *GDAL {
	g := &GDAL{}
	for _, o := range opts {
		o(g)
	}
	return g
}

// errorHandler logs gdal messages up to warnings and only fails on actual errors.
// godal otherwise treats warnings as failures, e.g. the VRT driver warning about
// creation options it ignores.
func errorHandler(ctx context.Context) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			log.Logger(ctx).Debug("gdal", zap.Int("code", code), zap.String("msg", msg))
			return nil
		}
		return fmt.Errorf("gdal %d: %s", code, msg)
	}
}

type gdalDriver struct {
	name DriverName
}

func (d gdalDriver) Name() DriverName {
	return d.name
}

type gdalDataset struct {
	ds *godal.Dataset
	eh godal.ErrorHandler
}

func (g *GDAL) Open(ctx context.Context, name string) (Dataset, error) {
	eh := errorHandler(ctx)
	ds, err := godal.Open(name, godal.RasterOnly(),
		godal.ConfigOption(g.configOptions...),
		godal.ErrLogger(eh))
	if err != nil {
		return nil, err
	}
	return gdalDataset{ds, eh}, nil
}

func (g *GDAL) Driver(name DriverName) (Driver, error) {
	if _, ok := godal.RasterDriver(godal.DriverName(name)); !ok {
		return nil, fmt.Errorf("driver %s is not registered", name)
	}
	return gdalDriver{name}, nil
}

func (g *GDAL) Copy(ctx context.Context, src Dataset, drv Driver, dst string, options []CreationOption) (Dataset, error) {
	gsrc, ok := src.(gdalDataset)
	if !ok {
		return nil, fmt.Errorf("dataset %T was not opened by gdal", src)
	}
	copts := make([]string, len(options))
	for i, o := range options {
		copts[i] = o.String()
	}
	eh := errorHandler(ctx)
	ds, err := gsrc.ds.Translate(dst, nil,
		godal.DriverName(drv.Name()),
		godal.CreationOption(copts...),
		godal.ConfigOption(g.configOptions...),
		godal.ErrLogger(eh))
	if err != nil {
		return nil, err
	}
	return gdalDataset{ds, eh}, nil
}

func (d gdalDataset) BandCount() int {
	return d.ds.Structure().NBands
}

func (d gdalDataset) band(idx int) (godal.Band, error) {
	bands := d.ds.Bands()
	if idx < 1 || idx > len(bands) {
		return godal.Band{}, fmt.Errorf("band %d out of range [1,%d]", idx, len(bands))
	}
	return bands[idx-1], nil
}

func (d gdalDataset) SetNoData(idx int, nodata float64) error {
	bnd, err := d.band(idx)
	if err != nil {
		return err
	}
	return bnd.SetNoData(nodata, godal.ErrLogger(d.eh))
}

func (d gdalDataset) ClearNoData(idx int) error {
	bnd, err := d.band(idx)
	if err != nil {
		return err
	}
	return bnd.ClearNoData(godal.ErrLogger(d.eh))
}

func (d gdalDataset) Close() error {
	return d.ds.Close(godal.ErrLogger(d.eh))
}
