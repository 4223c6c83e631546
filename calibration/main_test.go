package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drs4 "github.com/diamondIPP/eudaq-drs4-sub000/pkg"
	"github.com/diamondIPP/eudaq-drs4-sub000/testUtils"
)

func TestSummarize(t *testing.T) {
	tables := map[uint16][]float64{
		4: testUtils.UniformWidths(1024, 0.5),
		1: testUtils.OutlierWidths(1024, 0.2, 10, 3),
	}

	summaries, err := summarize(tables)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, uint16(1), summaries[0].Channel)
	assert.InDelta(t, 0.6, summaries[0].MaxWidth, 1e-12)
	assert.InDelta(t, 0.2, summaries[0].MinWidth, 1e-12)
	assert.InDelta(t, 512, summaries[1].Period, 1e-9)
	assert.InDelta(t, 2, summaries[1].SamplingRate, 1e-12)
}

func TestSummarizeRejectsBadTables(t *testing.T) {
	widths := testUtils.UniformWidths(1024, 0.5)
	widths[3] = -1

	_, err := summarize(map[uint16][]float64{2: widths})
	var confErr *drs4.ConfigurationError
	require.True(t, errors.As(err, &confErr))
	assert.Equal(t, 2, confErr.Channel)
}

func TestPrintSummaries(t *testing.T) {
	var out bytes.Buffer
	printSummaries(&out, []channelSummary{{Channel: 3, Period: 200, SamplingRate: 5.12, MinWidth: 0.19, MaxWidth: 0.21}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "3 "))
	assert.Contains(t, lines[1], "5.1200")
}

func TestStoreNeedsFileAndConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"store", "--file", "run.dat"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	assert.Error(t, cmd.Execute())
}
