package coggerator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Fixed creation options, applied to every copy whatever the strategy.
var (
	numThreadsOption = CreationOption{Key: "NUM_THREADS", Value: "ALL_CPUS"}
	blockSizeOption  = CreationOption{Key: "BLOCKSIZE", Value: "512"}
)

// Request is the raw, unvalidated input of a conversion. An empty token means
// the option was not supplied and its default applies.
type Request struct {
	InputPath  string
	OutputPath string
	// NoData is the sentinel to set on every band. nil clears any existing sentinel.
	NoData      *float64
	Compression string
	BigTiff     string
	Resampling  string
	Overviews   string
}

// Config is a validated conversion request. It can only be obtained through
// Validate and is never modified afterwards.
type Config struct {
	inputPath   string
	outputPath  string
	noData      float64
	hasNoData   bool
	compression Compression
	bigTiff     BigTiff
	resampling  Resampling
	overviews   Overviews
}

func (c Config) InputPath() string  { return c.inputPath }
func (c Config) OutputPath() string { return c.outputPath }

// NoData returns the configured sentinel. ok is false when no sentinel should be set.
func (c Config) NoData() (nodata float64, ok bool) { return c.noData, c.hasNoData }

func (c Config) Compression() Compression { return c.compression }
func (c Config) BigTiff() BigTiff         { return c.bigTiff }
func (c Config) Resampling() Resampling   { return c.resampling }
func (c Config) Overviews() Overviews     { return c.overviews }

// CreationOptions returns the options handed to every engine copy of the conversion.
func (c Config) CreationOptions() []CreationOption {
	return []CreationOption{
		numThreadsOption,
		blockSizeOption,
		c.resampling.CreationOption(),
		c.bigTiff.CreationOption(),
		c.compression.CreationOption(),
		c.overviews.CreationOption(),
	}
}

// PathChecker answers existence queries for a family of paths.
type PathChecker interface {
	// Exists reports whether the file at path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// DirExists reports whether path can be used as a parent directory.
	DirExists(ctx context.Context, path string) (bool, error)
}

type localPaths struct{}

func (localPaths) Exists(_ context.Context, name string) (bool, error) {
	return statExists(name)
}

func (localPaths) DirExists(_ context.Context, name string) (bool, error) {
	return statExists(name)
}

func statExists(name string) (bool, error) {
	_, err := os.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type remoteScheme struct {
	prefix  string
	checker PathChecker
}

// Validator turns Requests into Configs. The zero value only knows about local paths.
type Validator struct {
	remotes []remoteScheme
}

type ValidatorOption func(v *Validator)

// RemoteScheme routes existence checks of paths starting with prefix (e.g. "gs://") to checker.
func RemoteScheme(prefix string, checker PathChecker) ValidatorOption {
	return func(v *Validator) {
		v.remotes = append(v.remotes, remoteScheme{prefix, checker})
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate checks req against the local filesystem only.
func Validate(ctx context.Context, req Request) (Config, error) {
	return NewValidator().Validate(ctx, req)
}

// Validate checks that the input exists and that the output's parent directory
// exists, then resolves the option tokens. Checks run in that order and the first
// failure is returned. Nothing is created or opened.
func (v *Validator) Validate(ctx context.Context, req Request) (Config, error) {
	exists, err := v.exists(ctx, req.InputPath, false)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, PathError{Path: req.InputPath, Detail: "input path does not exist"}
	}

	parent, ok := v.parent(req.OutputPath)
	if !ok {
		return Config{}, PathError{Path: req.OutputPath, Detail: "output path has no parent directory"}
	}
	if exists, err = v.exists(ctx, parent, true); err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, PathError{Path: parent, Detail: "output path parent does not exist"}
	}

	cfg := Config{
		inputPath:   req.InputPath,
		outputPath:  req.OutputPath,
		compression: DefaultCompression,
		bigTiff:     DefaultBigTiff,
		resampling:  DefaultResampling,
		overviews:   DefaultOverviews,
	}
	if req.NoData != nil {
		cfg.noData, cfg.hasNoData = *req.NoData, true
	}
	if req.Compression != "" {
		if cfg.compression, err = ParseCompression(req.Compression); err != nil {
			return Config{}, err
		}
	}
	if req.BigTiff != "" {
		if cfg.bigTiff, err = ParseBigTiff(req.BigTiff); err != nil {
			return Config{}, err
		}
	}
	if req.Resampling != "" {
		if cfg.resampling, err = ParseResampling(req.Resampling); err != nil {
			return Config{}, err
		}
	}
	if req.Overviews != "" {
		if cfg.overviews, err = ParseOverviews(req.Overviews); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (v *Validator) remote(name string) (remoteScheme, bool) {
	for _, r := range v.remotes {
		if strings.HasPrefix(name, r.prefix) {
			return r, true
		}
	}
	return remoteScheme{}, false
}

func (v *Validator) exists(ctx context.Context, name string, dir bool) (bool, error) {
	if name == "" {
		return false, nil
	}
	var checker PathChecker = localPaths{}
	if r, ok := v.remote(name); ok {
		checker = r.checker
	}
	var (
		exists bool
		err    error
	)
	if dir {
		exists, err = checker.DirExists(ctx, name)
	} else {
		exists, err = checker.Exists(ctx, name)
	}
	if err != nil {
		return false, IOError{Op: "stat " + name, Err: err}
	}
	return exists, nil
}

// parent returns the directory containing name. ok is false for an empty name,
// a bare file name, a filesystem root or a bare remote bucket.
func (v *Validator) parent(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if r, ok := v.remote(name); ok {
		key := strings.TrimSuffix(strings.TrimPrefix(name, r.prefix), "/")
		if !strings.Contains(key, "/") {
			return "", false
		}
		return r.prefix + path.Dir(key), true
	}
	if !strings.ContainsAny(name, `/`+string(filepath.Separator)) {
		return "", false
	}
	dir := filepath.Dir(name)
	if dir == filepath.Clean(name) {
		return "", false
	}
	return dir, true
}
