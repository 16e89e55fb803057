package tsnsched

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/iti/tsnsched/milp"
)

// scheduleRow is one stream of the schedule CSV. Path lists the hops as
// device|link|instance|queue joined by '-'.
type scheduleRow struct {
	Stream   string  `csv:"stream"`
	Src      string  `csv:"src"`
	Dst      string  `csv:"dst"`
	Instance int     `csv:"instance"`
	Latency  float64 `csv:"latency"`
	Bound    float64 `csv:"bound"`
	Path     string  `csv:"path"`
}

type usageRow struct {
	Link        string  `csv:"link"`
	Group       int     `csv:"group"`
	Phase       int     `csv:"phase"`
	Load        float64 `csv:"load"`
	Capacity    float64 `csv:"capacity"`
	Utilization float64 `csv:"utilization"`
}

// hopsString renders the hops of a stream for the schedule CSV
func hopsString(ss *StreamSchedule) string {
	parts := make([]string, len(ss.Hops))
	for idx, h := range ss.Hops {
		parts[idx] = fmt.Sprintf("%s|%s|%d|%d", h.From, h.Link, h.Label.Instance, h.Label.Queue)
	}
	return strings.Join(parts, "-")
}

// WriteScheduleCSV writes one row per scheduled stream
func WriteScheduleCSV(w io.Writer, s *Schedule) error {
	rows := make([]*scheduleRow, 0, len(s.Streams))
	for idx := range s.Streams {
		ss := &s.Streams[idx]
		rows = append(rows, &scheduleRow{Stream: ss.Stream, Src: ss.Src, Dst: ss.Dst, Instance: ss.Instance,
			Latency: ss.Latency, Bound: ss.Bound, Path: hopsString(ss)})
	}
	return gocsv.Marshal(rows, w)
}

// WriteUsageCSV writes the usage table, one row per link, group and phase
func WriteUsageCSV(w io.Writer, s *Schedule) error {
	rows := make([]*usageRow, 0, len(s.Usage))
	for _, u := range s.Usage {
		util := 0.0
		if u.Capacity > 0 {
			util = u.Load / u.Capacity
		}
		rows = append(rows, &usageRow{Link: u.Link, Group: u.Group, Phase: u.Phase, Load: u.Load,
			Capacity: u.Capacity, Utilization: util})
	}
	return gocsv.Marshal(rows, w)
}

// WriteSolution stores a schedule in the named file. A .csv name gets the
// schedule CSV, with the usage table next to it in <name>_usage.csv;
// yaml and json names get the whole schedule.
func WriteSolution(filename string, s *Schedule) error {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return s.WriteToFile(filename)
	}
	if err := writeFile(filename, func(w io.Writer) error { return WriteScheduleCSV(w, s) }); err != nil {
		return err
	}
	usage := strings.TrimSuffix(filename, filepath.Ext(filename)) + "_usage.csv"
	return writeFile(usage, func(w io.Writer) error { return WriteUsageCSV(w, s) })
}

// WriteProgram stores the program in the named file in LP format
func WriteProgram(filename string, p *milp.Program) error {
	return writeFile(filename, func(w io.Writer) error { return milp.WriteLP(w, p) })
}

func writeFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
