package tsnsched

import (
	"fmt"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one serialized trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry of the dictionary that maps trace ids to
// (name, type) pairs
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the records of a schedule replay. Traces are kept
// per stream, by the stream's position in the schedule.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor. An inactive manager ignores every
// record, so calls to it can stay in place when tracing is not wanted.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the TraceManager is being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under the given id
func (tm *TraceManager) AddTrace(vrt vrtime.Time, execID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[execID] = append(tm.Traces[execID], trace)
}

// AddName adds an element to the id -> (name,type) dictionary
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.Active() {
		return nil
	}
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("%w: trace id %d", ErrDuplicateName, id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// WriteToFile stores the traces in the named file, as yaml or json
// depending on its extension. Nothing is written by an inactive manager.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	return writeDesc(filename, tm)
}

// HopTrace records one frame starting transmission on a hop, or arriving
// at its destination
type HopTrace struct {
	Time     float64 `yaml:"time"`
	Ticks    int64   `yaml:"ticks"`
	Priority int64   `yaml:"priority"`
	Stream   string  `yaml:"stream"`
	Release  int     `yaml:"release"`
	Hop      int     `yaml:"hop"`
	Link     string  `yaml:"link,omitempty"`
	Label    Label   `yaml:"label"`
	Phase    int     `yaml:"phase"`
	Op       string  `yaml:"op"`
}

// Serialize renders the record as yaml
func (ht *HopTrace) Serialize() (string, error) {
	bytes, err := yaml.Marshal(*ht)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// addHopTrace records a replay event of the frame on the trace manager
func addHopTrace(tm *TraceManager, vrt vrtime.Time, execID int, ht *HopTrace) error {
	if !tm.Active() {
		return nil
	}
	ht.Time = vrt.Seconds()
	ht.Ticks = vrt.Ticks()
	ht.Priority = vrt.Pri()

	str, err := ht.Serialize()
	if err != nil {
		return err
	}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(vrt, execID, TraceInst{TraceTime: traceTime, TraceType: "hop", TraceStr: str})
	return nil
}
