package drs4

import (
	"fmt"

	"github.com/jmbenlloch/go-hdf5"
)

const STRLEN = 32

// H5S_UNLIMITED is -1L
var unlimitedDims = -1

type EventDataHDF5 struct {
	evt_number   int32
	timestamp    uint64
	trigger_cell int32
	is_pulser    int8
}

type RunInfoHDF5 struct {
	run_number int32
}

type SensorHDF5 struct {
	channel         int32
	name            [STRLEN]byte
	polarity        int32
	pulser_polarity int32
	sampling_rate   float64
}

type ChannelFeaturesHDF5 struct {
	evt_number     int32
	channel        int32
	valid          int8
	saturated      int8
	median         float64
	average        float64
	noise_mean     float64
	noise_sigma    float64
	peak_position  int32
	peak_value     float64
	peak_time      float64
	fitted         int8
	fit_peak_time  float64
	fit_peak_value float64
	rise_time      float64
	fall_time      float64
	start_time     float64
	peaking_time   float64
	cfd_time       float64
	bucket         int8
	ped_bucket     int8
	n_peaks_before int32
	n_peaks_inside int32
	n_peaks_after  int32
	n_peaks        int32
}

type IntegralHDF5 struct {
	evt_number    int32
	channel       int32
	name          [STRLEN]byte
	value         float64
	time_integral float64
	peak_time     float64
	length        float64
	low_bin       int32
	high_bin      int32
	valid         int8
	degenerate    int8
}

type PeakHDF5 struct {
	evt_number int32
	channel    int32
	position   int32
	time       float64
}

type SpectrumHDF5 struct {
	evt_number int32
	channel    int32
	mean_mag   float64
	mean_freq  float64
	min_mag    float64
	min_freq   float64
	max_mag    float64
	max_freq   float64
	mode0      float64
	mode1      float64
	mode2      float64
	mode3      float64
	mode4      float64
}

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func boolToInt8(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

// create3dArray creates an extensible [event, channel, sample] float array.
func create3dArray(group *hdf5.Group, name string, nChannels, nSamples, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0, 0, 0}
	maxDims := []uint{uint(unlimitedDims), uint(nChannels), uint(nSamples)}
	chunks := []uint{1, uint(nChannels), uint(nSamples)}

	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()
	plist.SetChunk(chunks)
	plist.SetDeflate(compression)

	dset, err := group.CreateDatasetWith(name, hdf5.T_NATIVE_FLOAT, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

// createTable creates an extensible one dimensional table of compound rows
// shaped like datatype.
func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()
	plist.SetChunk([]uint{4096})
	plist.SetDeflate(compression)

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, rows int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, rows)
}

// writeArrayToTable appends data after the first rows entries of dataset.
func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, rows int) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil {
		return fmt.Errorf("error creating dataspace: %w", err)
	}
	defer dataspace.Close()

	if err := dataset.Resize([]uint{uint(rows) + length}); err != nil {
		return fmt.Errorf("error extending table: %w", err)
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{uint(rows)}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting rows: %w", err)
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

func write3dArray(dataset *hdf5.Dataset, data *[]float32, evtCounter, nChannels, nSamples int) error {
	newsize := []uint{uint(evtCounter) + 1, uint(nChannels), uint(nSamples)}
	if err := dataset.Resize(newsize); err != nil {
		return fmt.Errorf("error extending waveforms: %w", err)
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{uint(evtCounter), 0, 0}
	count := []uint{1, uint(nChannels), uint(nSamples)}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting waveforms: %w", err)
	}

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return fmt.Errorf("error creating dataspace: %w", err)
	}
	defer dataspace.Close()
	return dataset.WriteSubset(data, dataspace, filespace)
}
