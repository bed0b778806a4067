package coggerator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.airbusds-geo.com/log"
	"go.uber.org/zap"
)

// Strategy selects how the no-data sentinel is sequenced relative to overview computation.
type Strategy int

const (
	// TwoPhase copies the source to a temporary VRT, tags no-data on the VRT bands and
	// only then copies the VRT to COG, so overviews are computed with no-data pixels
	// excluded from resampling.
	TwoPhase Strategy = iota
	// Direct copies the source straight to COG and tags no-data on the written file.
	// Overviews have already been computed at that point and may blend no-data pixels.
	Direct
)

func (s Strategy) String() string {
	switch s {
	case TwoPhase:
		return "two-phase"
	case Direct:
		return "direct"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Uploader publishes a finished local file to a remote location.
type Uploader interface {
	Upload(ctx context.Context, dst, localSrc string) error
}

type remoteOutput struct {
	prefix   string
	uploader Uploader
}

// Converter runs conversions with a strategy chosen once at construction. It holds no
// per-call state and may be used concurrently, as long as calls target distinct outputs.
type Converter struct {
	engine   Engine
	strategy Strategy
	tempDir  string
	remotes  []remoteOutput
}

type ConverterOption func(c *Converter) error

// withStrategy overrides the TwoPhase strategy. Only tests compare strategies,
// production conversions always run TwoPhase.
func withStrategy(s Strategy) ConverterOption {
	return func(c *Converter) error {
		if s != TwoPhase && s != Direct {
			return fmt.Errorf("unknown strategy %d", int(s))
		}
		c.strategy = s
		return nil
	}
}

// TempDir sets where intermediate files are created. Defaults to os.TempDir().
func TempDir(dir string) ConverterOption {
	return func(c *Converter) error {
		if dir == "" {
			return fmt.Errorf("empty temp dir")
		}
		c.tempDir = dir
		return nil
	}
}

// RemoteOutput makes outputs starting with prefix be written locally first and then
// handed to uploader.
func RemoteOutput(prefix string, uploader Uploader) ConverterOption {
	return func(c *Converter) error {
		if prefix == "" || uploader == nil {
			return fmt.Errorf("remote output requires a prefix and an uploader")
		}
		c.remotes = append(c.remotes, remoteOutput{prefix, uploader})
		return nil
	}
}

func NewConverter(engine Engine, opts ...ConverterOption) (*Converter, error) {
	if engine == nil {
		return nil, fmt.Errorf("nil engine")
	}
	c := &Converter{
		engine:   engine,
		strategy: TwoPhase,
		tempDir:  os.TempDir(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Converter) Strategy() Strategy {
	return c.strategy
}

// Convert produces the COG described by cfg and returns its path. The call blocks until
// the engine is done; there is no cancellation once the engine has started copying.
func (c *Converter) Convert(ctx context.Context, cfg Config) (string, error) {
	start := time.Now()
	logger := log.Logger(ctx).With(
		zap.String("input", cfg.InputPath()),
		zap.String("output", cfg.OutputPath()),
		zap.Stringer("strategy", c.strategy))

	dst := cfg.OutputPath()
	var upload *remoteOutput
	for i := range c.remotes {
		if strings.HasPrefix(dst, c.remotes[i].prefix) {
			upload = &c.remotes[i]
			dst = c.tempName(".tif")
			defer c.removeTemp(ctx, dst)
			break
		}
	}

	src, err := c.engine.Open(ctx, cfg.InputPath())
	if err != nil {
		return "", EngineError{Op: "open " + cfg.InputPath(), Err: err}
	}
	defer src.Close() //nolint:errcheck

	switch c.strategy {
	case Direct:
		err = c.direct(ctx, src, cfg, dst)
	default:
		err = c.twoPhase(ctx, src, cfg, dst)
	}
	if err != nil {
		return "", err
	}

	if upload != nil {
		logger.Debug("uploading", zap.String("local", dst))
		if err := upload.uploader.Upload(ctx, cfg.OutputPath(), dst); err != nil {
			return "", IOError{Op: "upload " + cfg.OutputPath(), Err: err}
		}
	}
	logger.Info("created cog", zap.Duration("elapsed", time.Since(start)))
	return cfg.OutputPath(), nil
}

func (c *Converter) direct(ctx context.Context, src Dataset, cfg Config, dst string) error {
	cogDriver, err := c.engine.Driver(COG)
	if err != nil {
		return EngineError{Op: "get driver " + string(COG), Err: err}
	}
	log.Logger(ctx).Debug("copy to cog", zap.String("dst", dst))
	out, err := c.engine.Copy(ctx, src, cogDriver, dst, cfg.CreationOptions())
	if err != nil {
		return EngineError{Op: "copy to " + dst, Err: err}
	}
	if err := applyNoData(out, cfg); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return EngineError{Op: "close " + dst, Err: err}
	}
	return nil
}

func (c *Converter) twoPhase(ctx context.Context, src Dataset, cfg Config, dst string) error {
	p, err := c.prepare(ctx, src, cfg)
	if err != nil {
		return err
	}
	defer p.release(ctx)
	return p.finalize(ctx, dst)
}

// prepared is the intermediate state of a two-phase conversion: a VRT describing the
// source with the no-data sentinel already applied to every band.
type prepared struct {
	c       *Converter
	cfg     Config
	vrtPath string
	vrt     Dataset
}

func (c *Converter) prepare(ctx context.Context, src Dataset, cfg Config) (*prepared, error) {
	vrtDriver, err := c.engine.Driver(VRT)
	if err != nil {
		return nil, EngineError{Op: "get driver " + string(VRT), Err: err}
	}
	p := &prepared{c: c, cfg: cfg, vrtPath: c.tempName(".vrt")}
	log.Logger(ctx).Debug("copy to vrt", zap.String("vrt", p.vrtPath))
	if p.vrt, err = c.engine.Copy(ctx, src, vrtDriver, p.vrtPath, cfg.CreationOptions()); err != nil {
		p.release(ctx)
		return nil, EngineError{Op: "copy to " + p.vrtPath, Err: err}
	}
	if err = applyNoData(p.vrt, cfg); err != nil {
		p.release(ctx)
		return nil, err
	}
	return p, nil
}

func (p *prepared) finalize(ctx context.Context, dst string) error {
	cogDriver, err := p.c.engine.Driver(COG)
	if err != nil {
		return EngineError{Op: "get driver " + string(COG), Err: err}
	}
	log.Logger(ctx).Debug("copy vrt to cog", zap.String("vrt", p.vrtPath), zap.String("dst", dst))
	out, err := p.c.engine.Copy(ctx, p.vrt, cogDriver, dst, p.cfg.CreationOptions())
	if err != nil {
		return EngineError{Op: "copy to " + dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return EngineError{Op: "close " + dst, Err: err}
	}
	return nil
}

// release closes the intermediate VRT and removes it from disk. It is safe to call
// on a partially prepared state.
func (p *prepared) release(ctx context.Context) {
	if p.vrt != nil {
		if err := p.vrt.Close(); err != nil {
			log.Logger(ctx).Warn("close vrt", zap.String("vrt", p.vrtPath), zap.Error(err))
		}
		p.vrt = nil
	}
	p.c.removeTemp(ctx, p.vrtPath)
}

// applyNoData sets the configured sentinel on bands 1..N of ds, or clears it when none
// is configured.
func applyNoData(ds Dataset, cfg Config) error {
	nodata, ok := cfg.NoData()
	for b := 1; b <= ds.BandCount(); b++ {
		var err error
		if ok {
			err = ds.SetNoData(b, nodata)
		} else {
			err = ds.ClearNoData(b)
		}
		if err != nil {
			return EngineError{Op: fmt.Sprintf("set nodata on band %d", b), Err: err}
		}
	}
	return nil
}

func (c *Converter) tempName(ext string) string {
	return filepath.Join(c.tempDir, "coggerator-"+uuid.New().String()+ext)
}

func (c *Converter) removeTemp(ctx context.Context, name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Logger(ctx).Warn("remove temporary file", zap.String("file", name), zap.Error(err))
	}
}
