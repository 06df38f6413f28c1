// Package results loads pruning study records (parameter count, error and
// run time per pruning step) and renders them as LaTeX rows or plots.
package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-fxnet/model"
)

// Record is one pruning step of one method on one architecture.
type Record struct {
	Arch           model.Arch `json:"arch"`
	Method         string     `json:"method"`
	ParameterCount int        `json:"parameter_count"`
	Error          float64    `json:"error"`
	Runtime        float64    `json:"runtime"`
}

// Validate checks the arch name and that the numbers are usable.
func (r Record) Validate() error {
	if _, err := model.ParseArch(string(r.Arch)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("record has no method")
	}
	if r.ParameterCount <= 0 {
		return fmt.Errorf("parameter_count must be > 0, got %d", r.ParameterCount)
	}
	if r.Error < 0 || math.IsNaN(r.Error) || math.IsInf(r.Error, 0) {
		return fmt.Errorf("error must be finite and >= 0, got %v", r.Error)
	}
	if r.Runtime < 0 || math.IsNaN(r.Runtime) || math.IsInf(r.Runtime, 0) {
		return fmt.Errorf("runtime must be finite and >= 0, got %v", r.Runtime)
	}
	return nil
}

type fileJSON struct {
	Records []Record `json:"records"`
}

// Load reads records from a JSON ({"records": [...]}) or, for a .csv
// extension, a CSV file with header arch,method,parameter_count,error,runtime.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []Record
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		recs, err = ReadCSV(f)
	} else {
		recs, err = ReadJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// ReadJSON decodes and validates a JSON records document.
func ReadJSON(r io.Reader) ([]Record, error) {
	var doc fileJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	for i := range doc.Records {
		doc.Records[i].Arch = model.Arch(strings.ToLower(string(doc.Records[i].Arch)))
		if err := doc.Records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return doc.Records, nil
}

var csvHeader = []string{"arch", "method", "parameter_count", "error", "runtime"}

// ReadCSV decodes and validates CSV records. Columns are matched by header
// name, so their order is free.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, h := range csvHeader {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("csv header lacks %q", h)
		}
	}

	out := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		pc, err := strconv.Atoi(strings.TrimSpace(row[col["parameter_count"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: parameter_count: %w", line, err)
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(row[col["error"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: error: %w", line, err)
		}
		rt, err := strconv.ParseFloat(strings.TrimSpace(row[col["runtime"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: runtime: %w", line, err)
		}
		rec := Record{
			Arch:           model.Arch(strings.ToLower(strings.TrimSpace(row[col["arch"]]))),
			Method:         strings.TrimSpace(row[col["method"]]),
			ParameterCount: pc,
			Error:          e,
			Runtime:        rt,
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Series is the records of one method on one architecture in file order.
type Series struct {
	Arch    model.Arch
	Method  string
	Records []Record
}

// Group splits records by arch, then method. Groups appear in the order
// their first record appears.
func Group(recs []Record) []Series {
	var out []Series
	index := map[[2]string]int{}
	for _, r := range recs {
		k := [2]string{string(r.Arch), r.Method}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Series{Arch: r.Arch, Method: r.Method})
		}
		out[i].Records = append(out[i].Records, r)
	}
	return out
}

// Filter returns the records of arch.
func Filter(recs []Record, arch model.Arch) []Record {
	var out []Record
	for _, r := range recs {
		if r.Arch == arch {
			out = append(out, r)
		}
	}
	return out
}

// LaTeXRows writes one table row per record, numbering the steps of each
// series from zero:
//
//	0 & 29313 & 0.01131 & 5.505 \\ \hline
func LaTeXRows(w io.Writer, s Series) error {
	for i, r := range s.Records {
		_, err := fmt.Fprintf(w, "    %d & %d & %s & %s \\\\ \\hline\n",
			i, r.ParameterCount, formatFloat(r.Error), formatFloat(r.Runtime))
		if err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
