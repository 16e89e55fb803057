package tsnsched

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

// File names of a case directory in the comma-separated text format
const (
	LegacyTopoFile  = "1_topo.txt"
	LegacyFlowsFile = "1_flows.txt"
)

// legacyFlow is one FLOW row:
// FLOW,priority,id,name,type,source,sink,unused,period,unit,deadline,unit,size in bytes
type legacyFlow struct {
	Kind         string  `csv:"kind"`
	Priority     int     `csv:"priority"`
	ID           int     `csv:"id"`
	Name         string  `csv:"name"`
	Type         string  `csv:"type"`
	Src          string  `csv:"src"`
	Dst          string  `csv:"dst"`
	Unused       string  `csv:"unused"`
	Period       float64 `csv:"period"`
	PeriodUnit   string  `csv:"periodunit"`
	Deadline     float64 `csv:"deadline"`
	DeadlineUnit string  `csv:"deadlineunit"`
	Size         float64 `csv:"size"`
}

const legacyFlowHeader = "kind,priority,id,name,type,src,dst,unused,period,periodunit,deadline,deadlineunit,size"

// legacySwitchConf is one row of a Multi-CQF switch configuration:
// priority,queues,bandwidth fraction,cycle coefficient
type legacySwitchConf struct {
	Priority    int     `csv:"priority"`
	Queues      int     `csv:"queues"`
	Bandwidth   float64 `csv:"bandwidth"`
	Coefficient int     `csv:"coefficient"`
}

const legacySwitchHeader = "priority,queues,bandwidth,coefficient"

// microseconds per time unit
var legacyUnits = map[string]float64{
	"":             1,
	"NANO_SECOND":  1e-3,
	"MICRO_SECOND": 1,
	"MILLI_SECOND": 1e3,
	"SECOND":       1e6,
}

// ReadLegacyCase reads the topology and flows of a case directory
func ReadLegacyCase(dir string) (*TopoDesc, *StreamListDesc, error) {
	td, err := ReadLegacyTopo(filepath.Join(dir, LegacyTopoFile), nil)
	if err != nil {
		return nil, nil, err
	}
	sld, err := ReadLegacyFlows(filepath.Join(dir, LegacyFlowsFile), nil)
	if err != nil {
		return nil, nil, err
	}
	td.Name = LegacyCaseName(dir)
	sld.ListName = td.Name
	return td, sld, nil
}

// LegacyCaseName names a case after the last two elements of its
// directory, e.g. "test_2sw.proto" for cases/test/2sw.proto/
func LegacyCaseName(dir string) string {
	dir = filepath.Clean(dir)
	base := filepath.Base(dir)
	parent := filepath.Base(filepath.Dir(dir))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return parent + "_" + base
}

// ReadLegacyTopo parses a topology file. Vertex rows are
// "vertex,type,name,mac,address,PortNumber,ports", edge rows are
// "edge,type,a[.Pn],b[.Pn],direction,id". Every edge is a full-duplex link
// named after its id; link capacities are left to the cycle configuration.
// If dict is empty the named file is read.
func ReadLegacyTopo(filename string, dict []byte) (*TopoDesc, error) {
	lines, err := legacyLines(filename, dict)
	if err != nil {
		return nil, err
	}

	// vertex and edge rows have different lengths
	rdr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true
	records, err := rdr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	td := CreateTopoDesc(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	for _, rec := range records {
		switch strings.ToLower(rec[0]) {
		case "vertex":
			if len(rec) < 3 {
				return nil, fmt.Errorf("%s: short vertex row %q", filename, strings.Join(rec, ","))
			}
			td.AddNode(rec[2], rec[1])
		case "edge":
			if len(rec) < 6 {
				return nil, fmt.Errorf("%s: short edge row %q", filename, strings.Join(rec, ","))
			}
			td.AddLink(LinkDesc{Name: rec[5], From: stripPort(rec[2]), To: stripPort(rec[3]), Duplex: true})
		default:
			return nil, fmt.Errorf("%s: unknown row kind %q", filename, rec[0])
		}
	}
	return td, nil
}

// stripPort removes the ".Pn" port suffix of a device reference
func stripPort(dev string) string {
	if idx := strings.Index(dev, "."); idx >= 0 {
		return dev[:idx]
	}
	return dev
}

// ReadLegacyFlows parses a flow file. Periods and deadlines are converted
// to microseconds and sizes from bytes to bits. If dict is empty the named
// file is read.
func ReadLegacyFlows(filename string, dict []byte) (*StreamListDesc, error) {
	lines, err := legacyLines(filename, dict)
	if err != nil {
		return nil, err
	}
	var rows []*legacyFlow
	if len(lines) > 0 {
		if err := gocsv.UnmarshalString(legacyFlowHeader+"\n"+strings.Join(lines, "\n"), &rows); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}

	sld := CreateStreamListDesc(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	for _, row := range rows {
		if !strings.EqualFold(row.Kind, "flow") {
			return nil, fmt.Errorf("%s: unknown row kind %q", filename, row.Kind)
		}
		pu, ok1 := legacyUnits[strings.ToUpper(row.PeriodUnit)]
		du, ok2 := legacyUnits[strings.ToUpper(row.DeadlineUnit)]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: flow %s has an unknown time unit", filename, row.Name)
		}
		sld.Streams = append(sld.Streams, Stream{
			ID:        row.ID,
			Name:      row.Name,
			Src:       stripPort(row.Src),
			Dst:       stripPort(row.Dst),
			Period:    row.Period * pu,
			FrameSize: row.Size * 8,
			Bound:     row.Deadline * du,
			Priority:  row.Priority,
		})
	}
	return sld, nil
}

// ReadLegacySwitchConfig parses a Multi-CQF switch configuration into
// instances, one per row. If dict is empty the named file is read.
func ReadLegacySwitchConfig(filename string, dict []byte) ([]Instance, error) {
	lines, err := legacyLines(filename, dict)
	if err != nil {
		return nil, err
	}
	var rows []*legacySwitchConf
	if len(lines) > 0 {
		if err := gocsv.UnmarshalString(legacySwitchHeader+"\n"+strings.Join(lines, "\n"), &rows); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	rtn := make([]Instance, 0, len(rows))
	for _, row := range rows {
		rtn = append(rtn, Instance{Priority: row.Priority, Queues: row.Queues,
			BandwidthFraction: row.Bandwidth, CycleCoefficient: row.Coefficient})
	}
	return rtn, nil
}

// legacyLines returns the non-empty, non-comment lines of the input
func legacyLines(filename string, dict []byte) ([]string, error) {
	if len(dict) == 0 {
		var err error
		if dict, err = os.ReadFile(filename); err != nil {
			return nil, err
		}
	}
	var rtn []string
	for _, line := range strings.Split(string(dict), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rtn = append(rtn, line)
	}
	return rtn, nil
}
