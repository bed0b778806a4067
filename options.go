package coggerator

// CreationOption is a single KEY=VALUE creation option handed to the raster engine.
type CreationOption struct {
	Key   string
	Value string
}

func (co CreationOption) String() string {
	return co.Key + "=" + co.Value
}

// Compression is the COMPRESS creation option of the COG driver.
type Compression int

const (
	CompressionZSTD Compression = iota
	CompressionLZW
	CompressionDeflate
	CompressionPackbits
	CompressionLZMA
	CompressionLERC
	CompressionLERCDeflate
	CompressionLERCZSTD
	CompressionNone
)

// DefaultCompression is used when no compression token is supplied.
const DefaultCompression = CompressionLZW

// Compressions lists every Compression variant in declaration order.
func Compressions() []Compression {
	return []Compression{
		CompressionZSTD, CompressionLZW, CompressionDeflate, CompressionPackbits, CompressionLZMA,
		CompressionLERC, CompressionLERCDeflate, CompressionLERCZSTD, CompressionNone,
	}
}

// ParseCompression returns the Compression named by token. Matching is exact and case-sensitive.
func ParseCompression(token string) (Compression, error) {
	switch token {
	case "ZSTD":
		return CompressionZSTD, nil
	case "LZW":
		return CompressionLZW, nil
	case "DEFLATE":
		return CompressionDeflate, nil
	case "PACKBITS":
		return CompressionPackbits, nil
	case "LZMA":
		return CompressionLZMA, nil
	case "LERC":
		return CompressionLERC, nil
	case "LERC_DEFLATE":
		return CompressionLERCDeflate, nil
	case "LERC_ZSTD":
		return CompressionLERCZSTD, nil
	case "NONE":
		return CompressionNone, nil
	}
	return 0, InvalidOptionError{Catalog: CompressionCatalog, Token: token}
}

func (c Compression) String() string {
	switch c {
	case CompressionZSTD:
		return "ZSTD"
	case CompressionLZW:
		return "LZW"
	case CompressionDeflate:
		return "DEFLATE"
	case CompressionPackbits:
		return "PACKBITS"
	case CompressionLZMA:
		return "LZMA"
	case CompressionLERC:
		return "LERC"
	case CompressionLERCDeflate:
		return "LERC_DEFLATE"
	case CompressionLERCZSTD:
		return "LERC_ZSTD"
	case CompressionNone:
		return "NONE"
	}
	panic("bug: unknown compression")
}

func (c Compression) CreationOption() CreationOption {
	return CreationOption{Key: "COMPRESS", Value: c.String()}
}

// BigTiff is the BIGTIFF creation option.
type BigTiff int

const (
	BigTiffYes BigTiff = iota
	BigTiffNo
	BigTiffIfNeeded
	BigTiffIfSafer
)

const DefaultBigTiff = BigTiffIfSafer

func BigTiffs() []BigTiff {
	return []BigTiff{BigTiffYes, BigTiffNo, BigTiffIfNeeded, BigTiffIfSafer}
}

func ParseBigTiff(token string) (BigTiff, error) {
	switch token {
	case "YES":
		return BigTiffYes, nil
	case "NO":
		return BigTiffNo, nil
	case "IF_NEEDED":
		return BigTiffIfNeeded, nil
	case "IF_SAFER":
		return BigTiffIfSafer, nil
	}
	return 0, InvalidOptionError{Catalog: BigTiffCatalog, Token: token}
}

func (b BigTiff) String() string {
	switch b {
	case BigTiffYes:
		return "YES"
	case BigTiffNo:
		return "NO"
	case BigTiffIfNeeded:
		return "IF_NEEDED"
	case BigTiffIfSafer:
		return "IF_SAFER"
	}
	panic("bug: unknown bigtiff")
}

func (b BigTiff) CreationOption() CreationOption {
	return CreationOption{Key: "BIGTIFF", Value: b.String()}
}

// Resampling is the algorithm used by the COG driver to compute overviews.
type Resampling int

const (
	ResamplingNearest Resampling = iota
	ResamplingAverage
	ResamplingBilinear
	ResamplingCubic
	ResamplingCubicSpline
	ResamplingLanczos
	ResamplingMode
	ResamplingRMS
)

const DefaultResampling = ResamplingCubic

func Resamplings() []Resampling {
	return []Resampling{
		ResamplingNearest, ResamplingAverage, ResamplingBilinear, ResamplingCubic,
		ResamplingCubicSpline, ResamplingLanczos, ResamplingMode, ResamplingRMS,
	}
}

func ParseResampling(token string) (Resampling, error) {
	switch token {
	case "NEAREST":
		return ResamplingNearest, nil
	case "AVERAGE":
		return ResamplingAverage, nil
	case "BILINEAR":
		return ResamplingBilinear, nil
	case "CUBIC":
		return ResamplingCubic, nil
	case "CUBICSPLINE":
		return ResamplingCubicSpline, nil
	case "LANCZOS":
		return ResamplingLanczos, nil
	case "MODE":
		return ResamplingMode, nil
	case "RMS":
		return ResamplingRMS, nil
	}
	return 0, InvalidOptionError{Catalog: ResamplingCatalog, Token: token}
}

func (r Resampling) String() string {
	switch r {
	case ResamplingNearest:
		return "NEAREST"
	case ResamplingAverage:
		return "AVERAGE"
	case ResamplingBilinear:
		return "BILINEAR"
	case ResamplingCubic:
		return "CUBIC"
	case ResamplingCubicSpline:
		return "CUBICSPLINE"
	case ResamplingLanczos:
		return "LANCZOS"
	case ResamplingMode:
		return "MODE"
	case ResamplingRMS:
		return "RMS"
	}
	panic("bug: unknown resampling")
}

func (r Resampling) CreationOption() CreationOption {
	return CreationOption{Key: "RESAMPLING", Value: r.String()}
}

// Overviews controls how the COG driver treats overviews already present in the source.
type Overviews int

const (
	OverviewsAuto Overviews = iota
	OverviewsIgnoreExisting
	OverviewsForceUseExisting
	OverviewsNone
)

const DefaultOverviews = OverviewsIgnoreExisting

func OverviewModes() []Overviews {
	return []Overviews{OverviewsAuto, OverviewsIgnoreExisting, OverviewsForceUseExisting, OverviewsNone}
}

func ParseOverviews(token string) (Overviews, error) {
	switch token {
	case "AUTO":
		return OverviewsAuto, nil
	case "IGNORE_EXISTING":
		return OverviewsIgnoreExisting, nil
	case "FORCE_USE_EXISTING":
		return OverviewsForceUseExisting, nil
	case "NONE":
		return OverviewsNone, nil
	}
	return 0, InvalidOptionError{Catalog: OverviewsCatalog, Token: token}
}

func (o Overviews) String() string {
	switch o {
	case OverviewsAuto:
		return "AUTO"
	case OverviewsIgnoreExisting:
		return "IGNORE_EXISTING"
	case OverviewsForceUseExisting:
		return "FORCE_USE_EXISTING"
	case OverviewsNone:
		return "NONE"
	}
	panic("bug: unknown overviews")
}

func (o Overviews) CreationOption() CreationOption {
	return CreationOption{Key: "OVERVIEWS", Value: o.String()}
}
