package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/coggerator"
	"github.com/airbusgeo/coggerator/gcs"
	"github.com/airbusgeo/godal"
	"github.com/google/tiff"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.airbusds-geo.com/log"
)

var (
	verbose          bool
	configFile       string
	blocksize        string
	numCachedBlocks  int
	gdalConfig       string
	startTime        time.Time
	gsClient         *gcs.Client
	validator        *coggerator.Validator
	converter        *coggerator.Converter
	conversionTokens = []string{"compression", "bigtiff", "resampling", "overviews"}
)

var rootCmd = &cobra.Command{
	Use:   "coggerator",
	Short: "convert rasters to cloud optimized geotiffs",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		startTime = time.Now()
		if !verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		if err := loadConfig(cmd.Flags()); err != nil {
			return err
		}
		godal.RegisterAll()
		// workflows only reference gs:// paths, the pods access them
		remote := gcs.HasRemote(args...) || gcs.HasRemote(viper.GetString("outdir"))
		if remote && cmd != workflowCmd {
			var err error
			gsClient, err = gcs.New(cmd.Context(),
				gcs.BlockSize(blocksize), gcs.NumCachedBlocks(numCachedBlocks))
			if err != nil {
				return err
			}
		}
		return setupPipeline()
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		log.Logger(cmd.Context()).Sugar().Debugf("command %s took %.1fs",
			cmd.Name(), time.Since(startTime).Seconds())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file providing flag defaults")
	rootCmd.PersistentFlags().StringVar(&blocksize, "blocksize", "512k", "gs cache blocksize")
	rootCmd.PersistentFlags().IntVar(&numCachedBlocks, "numblocks", 1000, "number of gs cached blocks")
	rootCmd.PersistentFlags().StringVar(&gdalConfig, "gdal-config", "", "gdal configuration options, e.g. \"GDAL_CACHEMAX=512 GDAL_NUM_THREADS=4\"")
	rootCmd.AddCommand(convertCmd, batchCmd, workflowCmd, inspectCmd)

	addConversionFlags(convertCmd.Flags())
}

// addConversionFlags registers the flags that end up in a coggerator.Request.
func addConversionFlags(flags *pflag.FlagSet) {
	flags.Float64("nodata", 0, "nodata value to set on every band (unset by default)")
	flags.String("compression", "", "COMPRESS option: "+tokens(coggerator.Compressions()))
	flags.String("bigtiff", "", "BIGTIFF option: "+tokens(coggerator.BigTiffs()))
	flags.String("resampling", "", "RESAMPLING option: "+tokens(coggerator.Resamplings()))
	flags.String("overviews", "", "OVERVIEWS option: "+tokens(coggerator.OverviewModes()))
}

func tokens[T fmt.Stringer](variants []T) string {
	s := make([]string, len(variants))
	for i, v := range variants {
		s[i] = v.String()
	}
	return strings.Join(s, ", ")
}

// loadConfig makes every flag overridable by a COGGERATOR_* environment variable or
// by an entry of the --config file.
func loadConfig(flags *pflag.FlagSet) error {
	viper.SetEnvPrefix("coggerator")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return nil
}

func setupPipeline() error {
	gdalOpts := []coggerator.GDALOption{}
	if gc := viper.GetString("gdal-config"); gc != "" {
		keyvals, err := shellwords.Parse(gc)
		if err != nil {
			return fmt.Errorf("invalid gdal-config: %w", err)
		}
		gdalOpts = append(gdalOpts, coggerator.GDALConfig(keyvals...))
	}
	vopts := []coggerator.ValidatorOption{}
	copts := []coggerator.ConverterOption{}
	if gsClient != nil {
		vopts = append(vopts, coggerator.RemoteScheme(gcs.Prefix, gsClient))
		copts = append(copts, coggerator.RemoteOutput(gcs.Prefix, gsClient))
	}
	validator = coggerator.NewValidator(vopts...)
	var err error
	converter, err = coggerator.NewConverter(coggerator.NewGDAL(gdalOpts...), copts...)
	if err != nil {
		return fmt.Errorf("new converter: %w", err)
	}
	return nil
}

// request builds a conversion request from flags, environment and config file.
func request(src, dst string) coggerator.Request {
	req := coggerator.Request{
		InputPath:   src,
		OutputPath:  dst,
		Compression: viper.GetString("compression"),
		BigTiff:     viper.GetString("bigtiff"),
		Resampling:  viper.GetString("resampling"),
		Overviews:   viper.GetString("overviews"),
	}
	if viper.IsSet("nodata") {
		nd := viper.GetFloat64("nodata")
		req.NoData = &nd
	}
	return req
}

func convert(ctx context.Context, src, dst string) (string, error) {
	cfg, err := validator.Validate(ctx, request(src, dst))
	if err != nil {
		return "", err
	}
	return converter.Convert(ctx, cfg)
}

var convertCmd = &cobra.Command{
	Use:   "convert srcfile dstfile.tif",
	Short: "convert srcfile to a cloud optimized geotiff",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := convert(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect file.tif",
	Short: "print the internal layout of a tiff file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r tiff.ReadAtReadSeeker
		if gcs.Handles(args[0]) {
			var err error
			if r, err = gsClient.Reader(args[0]); err != nil {
				return err
			}
		} else {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			r = f
		}
		layout, err := coggerator.Inspect(r)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", args[0], err)
		}
		fmt.Printf("cog:         %v\n", layout.COG)
		fmt.Printf("bigtiff:     %v\n", layout.BigTIFF)
		fmt.Printf("size:        %dx%d\n", layout.Width, layout.Height)
		fmt.Printf("bands:       %d\n", layout.Bands)
		if layout.Tiled {
			fmt.Printf("tiles:       %dx%d\n", layout.TileWidth, layout.TileHeight)
		} else {
			fmt.Printf("tiles:       none (stripped)\n")
		}
		fmt.Printf("compression: %d\n", layout.Compression)
		fmt.Printf("overviews:   %d\n", layout.Overviews)
		fmt.Printf("masks:       %d\n", layout.Masks)
		if layout.HasNoData {
			fmt.Printf("nodata:      %s\n", layout.NoData)
		}
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+coggerator.Message(err))
		os.Exit(1)
	}
}
