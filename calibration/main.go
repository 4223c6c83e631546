package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/diamondIPP/eudaq-drs4-sub000/logging"
	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
)

var logger logging.Logger

func init() {
	logger = logging.New(os.Stdout, os.Stderr)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "calibration",
		Short:        "Inspect and store DRS4 time calibrations",
		SilenceUsage: true,
	}
	root.AddCommand(newShowCommand(), newStoreCommand())
	return root
}

func newShowCommand() *cobra.Command {
	var filename string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the time calibration found in a DRS4 file header",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := readTables(filename)
			if err != nil {
				return err
			}
			summaries, err := summarize(tables)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filename, "file", "f", "", "DRS4 binary file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newStoreCommand() *cobra.Command {
	var filename, configFile string
	var minRun, maxRun int
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store the time calibration of a DRS4 file in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxRun < minRun {
				return fmt.Errorf("max run %d before min run %d", maxRun, minRun)
			}
			config, err := drs4.LoadConfiguration(configFile)
			if err != nil {
				return fmt.Errorf("Error reading configuration file: %w", err)
			}
			drs4.SetLogger(logger)

			tables, err := readTables(filename)
			if err != nil {
				return err
			}
			if _, err := summarize(tables); err != nil {
				return err
			}

			dbConn, err := drs4.ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
			if err != nil {
				return fmt.Errorf("Error connection to database: %w", err)
			}
			defer dbConn.Close()
			return drs4.StoreCalibrationTables(dbConn, minRun, maxRun, tables)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&filename, "file", "f", "", "DRS4 binary file")
	flags.StringVarP(&configFile, "config", "c", "", "configuration file with the database settings")
	flags.IntVar(&minRun, "min-run", 0, "first run the calibration applies to")
	flags.IntVar(&maxRun, "max-run", 999999, "last run the calibration applies to")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("config")
	return cmd
}

func readTables(filename string) (map[uint16][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("Error opening file: %w", err)
	}
	defer file.Close()

	reader, err := drs4.NewDRSReader(file)
	if err != nil {
		return nil, fmt.Errorf("Error reading file header: %w", err)
	}
	return reader.Calibration(), nil
}

type channelSummary struct {
	Channel      uint16
	Period       float64
	SamplingRate float64
	MinWidth     float64
	MaxWidth     float64
}

// summarize validates every table and reduces it to a few numbers.
func summarize(tables map[uint16][]float64) ([]channelSummary, error) {
	summaries := make([]channelSummary, 0, len(tables))
	for channel, widths := range tables {
		table, err := drs4.NewCalibrationTable(channel, widths)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, channelSummary{
			Channel:      channel,
			Period:       floats.Sum(widths),
			SamplingRate: table.SamplingRate(),
			MinWidth:     floats.Min(widths),
			MaxWidth:     floats.Max(widths),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Channel < summaries[j].Channel })
	return summaries, nil
}

func printSummaries(out io.Writer, summaries []channelSummary) {
	fmt.Fprintf(out, "%-8s %12s %14s %10s %10s\n", "channel", "period [ns]", "rate [GS/s]", "min [ns]", "max [ns]")
	for _, s := range summaries {
		fmt.Fprintf(out, "%-8d %12.3f %14.4f %10.4f %10.4f\n", s.Channel, s.Period, s.SamplingRate, s.MinWidth, s.MaxWidth)
	}
}
