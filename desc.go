package tsnsched

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// To serialize and deserialize the inputs and outputs of a run, every
// description is a plain struct with json and yaml tags. Each has a
// WriteToFile method, which picks the format from the file extension, and
// a Read function which takes either a file name or the bytes themselves.

// A NodeDesc describes a device. Kind is "switch" or "endsystem" (the
// aliases accepted by ParseNodeKind work too).
type NodeDesc struct {
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`
}

// A LinkDesc describes a link. Capacity, in bits per base cycle, is
// derived from the link speed when zero. A duplex link stands for two
// directed links, the second named with ReverseLinkName.
type LinkDesc struct {
	Name     string  `json:"name" yaml:"name"`
	From     string  `json:"from" yaml:"from"`
	To       string  `json:"to" yaml:"to"`
	Capacity float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Delay    float64 `json:"delay,omitempty" yaml:"delay,omitempty"`
	Duplex   bool    `json:"duplex,omitempty" yaml:"duplex,omitempty"`
}

// TopoDesc describes a network
type TopoDesc struct {
	Name  string     `json:"name" yaml:"name"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
}

// CreateTopoDesc is a constructor
func CreateTopoDesc(name string) *TopoDesc {
	return &TopoDesc{Name: name, Nodes: []NodeDesc{}, Links: []LinkDesc{}}
}

// AddNode appends a device description
func (td *TopoDesc) AddNode(name, kind string) {
	td.Nodes = append(td.Nodes, NodeDesc{Name: name, Kind: kind})
}

// AddLink appends a link description
func (td *TopoDesc) AddLink(ld LinkDesc) {
	td.Links = append(td.Links, ld)
}

// WriteToFile stores the TopoDesc in the named file
func (td *TopoDesc) WriteToFile(filename string) error {
	return writeDesc(filename, td)
}

// ReadTopoDesc deserializes a TopoDesc. If dict is empty the bytes are
// read from the named file.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	td := &TopoDesc{}
	if err := readDesc(filename, useYAML, dict, td); err != nil {
		return nil, err
	}
	return td, nil
}

// Transform builds the network the description describes. Links without
// a capacity get the capacity of the configured link speed.
func (td *TopoDesc) Transform(cfg CycleConfig) (*Network, error) {
	net := NewNetwork(td.Name)
	for _, nd := range td.Nodes {
		kind, err := ParseNodeKind(nd.Kind)
		if err != nil {
			return nil, err
		}
		if err := net.AddNode(nd.Name, kind); err != nil {
			return nil, err
		}
	}
	for _, ld := range td.Links {
		capacity := ld.Capacity
		if capacity == 0 {
			capacity = cfg.LinkCapacity()
		}
		var err error
		if ld.Duplex {
			err = net.AddDuplex(ld.Name, ld.From, ld.To, capacity, ld.Delay)
		} else {
			err = net.AddLink(ld.Name, ld.From, ld.To, capacity, ld.Delay)
		}
		if err != nil {
			return nil, err
		}
	}
	return net, nil
}

// StreamListDesc describes the streams of a run
type StreamListDesc struct {
	ListName string   `json:"listname" yaml:"listname"`
	Streams  []Stream `json:"streams" yaml:"streams"`
}

// CreateStreamListDesc is a constructor
func CreateStreamListDesc(name string) *StreamListDesc {
	return &StreamListDesc{ListName: name, Streams: []Stream{}}
}

// AddStream appends a stream, giving it the next id when it has none
func (sld *StreamListDesc) AddStream(s Stream) {
	if s.ID == 0 {
		s.ID = len(sld.Streams) + 1
	}
	sld.Streams = append(sld.Streams, s)
}

// WriteToFile stores the StreamListDesc in the named file
func (sld *StreamListDesc) WriteToFile(filename string) error {
	return writeDesc(filename, sld)
}

// ReadStreamListDesc deserializes a StreamListDesc. If dict is empty the
// bytes are read from the named file.
func ReadStreamListDesc(filename string, useYAML bool, dict []byte) (*StreamListDesc, error) {
	sld := &StreamListDesc{}
	if err := readDesc(filename, useYAML, dict, sld); err != nil {
		return nil, err
	}
	return sld, nil
}

// Transform returns the streams of the list, ordered by id
func (sld *StreamListDesc) Transform() []*Stream {
	rtn := make([]*Stream, len(sld.Streams))
	for idx := range sld.Streams {
		s := sld.Streams[idx]
		s.Path = slices.Clone(s.Path)
		rtn[idx] = &s
	}
	slices.SortStableFunc(rtn, func(a, b *Stream) int { return a.ID - b.ID })
	return rtn
}

// ShaperDesc selects the discipline and its cycle configuration
type ShaperDesc struct {
	Discipline Discipline  `json:"discipline" yaml:"discipline"`
	Config     CycleConfig `json:"config" yaml:"config"`
}

// WriteToFile stores the ShaperDesc in the named file
func (sd *ShaperDesc) WriteToFile(filename string) error {
	return writeDesc(filename, sd)
}

// ReadShaperDesc deserializes a ShaperDesc. Fields left out keep the
// values of DefaultCycleConfig.
func ReadShaperDesc(filename string, useYAML bool, dict []byte) (*ShaperDesc, error) {
	sd := &ShaperDesc{Config: DefaultCycleConfig()}
	if err := readDesc(filename, useYAML, dict, sd); err != nil {
		return nil, err
	}
	return sd, nil
}

// WriteToFile stores the schedule in the named file as yaml or json
func (s *Schedule) WriteToFile(filename string) error {
	return writeDesc(filename, s)
}

// ReadSchedule deserializes a Schedule written by WriteToFile
func ReadSchedule(filename string, useYAML bool, dict []byte) (*Schedule, error) {
	s := &Schedule{}
	if err := readDesc(filename, useYAML, dict, s); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteToFile stores the report in the named file as yaml or json
func (r *InfeasibleReport) WriteToFile(filename string) error {
	return writeDesc(filename, r)
}

// IsYAML tells from the extension whether a file holds yaml
func IsYAML(filename string) bool {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return true
	}
	return false
}

func writeDesc(filename string, v any) error {
	var bytes []byte
	var err error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, err = yaml.Marshal(v)
	case ".json", ".JSON":
		bytes, err = json.MarshalIndent(v, "", "\t")
	default:
		return fmt.Errorf("%s: extension must be .yaml, .yml or .json", filename)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

func readDesc(filename string, useYAML bool, dict []byte, v any) error {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, v)
	} else {
		err = json.Unmarshal(dict, v)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

// CheckReadableFiles makes sure every named file exists
func CheckReadableFiles(names []string) error {
	return checkFiles(names, true)
}

// CheckOutputFiles makes sure the directory of every named file exists
func CheckOutputFiles(names []string) error {
	return checkFiles(names, false)
}

func checkFiles(names []string, checkExistence bool) error {
	var errs []error
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if directory != "" {
			if _, err := os.Stat(directory); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
