// Package gcs gives coggerator access to gs:// sources and destinations.
//
// Reads go through gdal's VSI layer, backed by an osio range-reading adapter.
// Writes are done locally and uploaded once complete.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	osiogcs "github.com/airbusgeo/osio/gcs"
	"github.com/google/tiff"
	adst "go.airbusds-geo.com/gcp/storage"
)

// Prefix is the scheme handled by this package.
const Prefix = "gs://"

// Client implements coggerator.PathChecker and coggerator.Uploader for gs:// paths.
type Client struct {
	stcl    *storage.Client
	adstcl  *adst.Client
	adapter *osio.Adapter
}

type options struct {
	blockSize       string
	numCachedBlocks int
	stcl            *storage.Client
}

type Option func(o *options)

// BlockSize sets the size of the blocks fetched when gdal reads a gs:// file, e.g. "512k".
func BlockSize(size string) Option {
	return func(o *options) {
		o.blockSize = size
	}
}

// NumCachedBlocks sets how many blocks are kept in memory.
func NumCachedBlocks(n int) Option {
	return func(o *options) {
		o.numCachedBlocks = n
	}
}

// StorageClient uses an existing storage client instead of creating one.
func StorageClient(stcl *storage.Client) Option {
	return func(o *options) {
		o.stcl = stcl
	}
}

// New creates the storage clients and registers the gs:// prefix with gdal. It must be
// called once, before any gs:// dataset is opened.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := options{
		blockSize:       "512k",
		numCachedBlocks: 1000,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var err error
	c := &Client{stcl: o.stcl}
	if c.stcl == nil {
		if c.stcl, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("storage.newclient: %w", err)
		}
	}
	if c.adstcl, err = adst.New(ctx, adst.WithStorageClient(c.stcl)); err != nil {
		return nil, fmt.Errorf("ads storage.new: %w", err)
	}
	gcsh, err := osiogcs.Handle(ctx, osiogcs.GCSClient(c.stcl))
	if err != nil {
		return nil, fmt.Errorf("gcs.handle: %w", err)
	}
	c.adapter, err = osio.NewAdapter(gcsh, osio.BlockSize(o.blockSize), osio.NumCachedBlocks(o.numCachedBlocks))
	if err != nil {
		return nil, fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler(Prefix, c.adapter); err != nil {
		return nil, fmt.Errorf("register osio: %w", err)
	}
	return c, nil
}

// Handles reports whether name is a gs:// url.
func Handles(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// HasRemote reports whether any of names is a gs:// url.
func HasRemote(names ...string) bool {
	for _, n := range names {
		if Handles(n) {
			return true
		}
	}
	return false
}

// bucket returns the bucket of a gs:// url.
func bucket(name string) (string, error) {
	if !Handles(name) {
		return "", fmt.Errorf("%s is not a %s url", name, Prefix)
	}
	b, _, _ := strings.Cut(strings.TrimPrefix(name, Prefix), "/")
	if b == "" {
		return "", fmt.Errorf("%s has no bucket", name)
	}
	return b, nil
}

// Exists reports whether the object at name exists.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	b, o, err := adst.Parse(name)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	_, err = c.stcl.Bucket(b).Object(o).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("attrs %s: %w", name, err)
	}
	return true, nil
}

// DirExists reports whether the bucket of name exists. Prefixes inside a bucket are
// implicit and always usable.
func (c *Client) DirExists(ctx context.Context, name string) (bool, error) {
	b, err := bucket(name)
	if err != nil {
		return false, err
	}
	_, err = c.stcl.Bucket(b).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bucket attrs %s: %w", b, err)
	}
	return true, nil
}

// Upload copies the local file src to the gs:// url dst.
func (c *Client) Upload(ctx context.Context, dst, src string) error {
	if err := c.adstcl.UploadFromFile(ctx, dst, src); err != nil {
		return fmt.Errorf("upload %s: %w", dst, err)
	}
	return nil
}

// Reader returns a range reader on the gs:// url name.
func (c *Client) Reader(name string) (tiff.ReadAtReadSeeker, error) {
	r, err := c.adapter.Reader(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return r, nil
}
