package coggerator

import (
	"errors"
	"fmt"
	"strings"
)

// Catalog names one of the four option families accepted by Validate.
type Catalog string

const (
	CompressionCatalog Catalog = "COMPRESSION"
	BigTiffCatalog     Catalog = "BIGTIFF"
	ResamplingCatalog  Catalog = "RESAMPLING"
	OverviewsCatalog   Catalog = "OVERVIEWS"
)

// PathError is returned when the input is missing or the output has no usable parent directory.
type PathError struct {
	Path   string
	Detail string
}

func (err PathError) Error() string {
	if err.Path == "" {
		return "path error: " + err.Detail
	}
	return fmt.Sprintf("path error: %s: %s", err.Detail, err.Path)
}

// InvalidOptionError is returned when a token is not part of its catalog.
type InvalidOptionError struct {
	Catalog Catalog
	Token   string
}

func (err InvalidOptionError) Error() string {
	return fmt.Sprintf("%s is not a valid %s option", err.Token, err.Catalog)
}

// EngineError wraps any failure reported by the raster engine.
type EngineError struct {
	Op  string
	Err error
}

func (err EngineError) Error() string {
	return fmt.Sprintf("gdal error: %s: %v", err.Op, err.Err)
}

func (err EngineError) Unwrap() error {
	return err.Err
}

// IOError wraps filesystem or storage failures happening outside the raster engine.
type IOError struct {
	Op  string
	Err error
}

func (err IOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", err.Op, err.Err)
}

func (err IOError) Unwrap() error {
	return err.Err
}

// Message renders err as a single human readable line. Validation errors are
// reported on their own, without the context they were wrapped in.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		perr PathError
		oerr InvalidOptionError
	)
	var msg string
	switch {
	case errors.As(err, &perr):
		msg = perr.Error()
	case errors.As(err, &oerr):
		msg = oerr.Error()
	default:
		msg = err.Error()
	}
	// gdal error stacks span multiple lines
	return strings.Join(strings.Fields(msg), " ")
}
