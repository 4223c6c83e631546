package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sqlx "github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/diamondIPP/eudaq-drs4-sub000/logging"
	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
)

var configuration drs4.Configuration

var (
	logger         logging.Logger
	VerbosityLevel int
)

type options struct {
	configFile  string
	metricsAddr string
	maxEvents   int
	skip        int
	workers     int
	output      string
	noDB        bool
}

func init() {
	logger = logging.New(os.Stdout, os.Stderr)
}

// shutdownSignals cancel the running pipeline.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "converter",
		Short: "Extract waveform features from DRS4 binary files",
		Long: `converter reads a DRS4 evaluation board file, applies the time calibration
of every channel and writes the per event features (integrals, peak shape,
peak search, spectrum, pile-up flags) to an HDF5 file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "configuration file (json or yaml)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9100")
	flags.IntVar(&opts.maxEvents, "max-events", 0, "override max_events")
	flags.IntVar(&opts.skip, "skip", 0, "override skip")
	flags.IntVar(&opts.workers, "workers", 0, "override num_workers")
	flags.StringVarP(&opts.output, "output", "o", "", "override file_out")
	flags.BoolVar(&opts.noDB, "no-db", false, "take calibration and channel settings from the file only")
	cmd.MarkFlagRequired("config")
	return cmd
}

// applyOverrides copies the flags explicitly set on the command line into
// the configuration.
func applyOverrides(cmd *cobra.Command, opts options, config *drs4.Configuration) {
	flags := cmd.Flags()
	if flags.Changed("max-events") {
		config.MaxEvents = opts.maxEvents
	}
	if flags.Changed("skip") {
		config.Skip = opts.skip
	}
	if flags.Changed("workers") {
		config.NumWorkers = opts.workers
	}
	if flags.Changed("output") {
		config.FileOut = opts.output
	}
	if flags.Changed("no-db") {
		config.NoDB = opts.noDB
	}
}

func run(cmd *cobra.Command, opts options) error {
	var err error
	configuration, err = drs4.LoadConfiguration(opts.configFile)
	if err != nil {
		return fmt.Errorf("Error reading configuration file: %w", err)
	}
	applyOverrides(cmd, opts, &configuration)
	drs4.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		logger.Info(fmt.Sprintf("Reading configuration file: %s", opts.configFile), "main")
		printConfiguration(configuration, logger)
	}

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return fmt.Errorf("Error opening file: %w", err)
	}
	defer file.Close()

	reader, err := drs4.NewDRSReader(file)
	if err != nil {
		return fmt.Errorf("Error reading file header: %w", err)
	}
	reader.RunNumber = uint32(configuration.RunNumber)

	calibrations := reader.Calibration()
	if !configuration.NoDB {
		dbConn, err := drs4.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
		if err != nil {
			return fmt.Errorf("Error connection to database: %w", err)
		}
		defer dbConn.Close()
		if calibrations, err = loadRunSettings(dbConn, &configuration); err != nil {
			return err
		}
	}

	metrics := drs4.NewMetrics()
	if opts.metricsAddr != "" {
		server := serveMetrics(opts.metricsAddr, metrics)
		defer server.Close()
	}

	rc, err := drs4.NewRunContext(configuration, calibrations, drs4.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("Error setting up run: %w", err)
	}

	consumer := drs4.NewMultiConsumer()
	if configuration.WriteData {
		writer, err := drs4.NewHDF5Writer(configuration.FileOut, rc)
		if err != nil {
			return fmt.Errorf("Error creating output file: %w", err)
		}
		consumer.Add(writer)
	}
	if VerbosityLevel > 0 {
		consumer.Add(progressReporter(1000))
	}

	start := time.Now()
	processed, runErr := runPipeline(cmd.Context(), NewFileReader(reader, configuration.Skip, configuration.MaxEvents), rc, consumer)
	closeErr := consumer.Close()
	logger.Info(fmt.Sprintf("Total events processed: %d in %d ms", processed, time.Since(start).Milliseconds()), "main")
	return errors.Join(runErr, closeErr)
}

// loadRunSettings reads the time calibration and channel settings of the
// configured run from the database.
func loadRunSettings(db *sqlx.DB, config *drs4.Configuration) (map[uint16][]float64, error) {
	calibrations, err := drs4.LoadCalibrationTables(db, config.RunNumber)
	if err != nil {
		return nil, fmt.Errorf("Error loading time calibration: %w", err)
	}
	settings, err := drs4.LoadChannelSettings(db, config.RunNumber)
	if err != nil {
		return nil, fmt.Errorf("Error loading channel settings: %w", err)
	}
	drs4.ApplyChannelSettings(config, settings)
	return calibrations, nil
}

func serveMetrics(addr string, metrics *drs4.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(fmt.Sprintf("metrics server: %v", err))
		}
	}()
	logger.Info(fmt.Sprintf("Serving metrics on %s", addr), "main")
	return server
}

func progressReporter(every int) drs4.ConsumerFunc {
	count := 0
	return func(features *drs4.EventFeatures) error {
		count++
		if count%every == 0 {
			logger.Info(fmt.Sprintf("Processed %d events, last %d", count, features.EventNumber), "main")
		}
		return nil
	}
}
