package evidence

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

var csvHeader = []string{"category", "component", "counter", "value", "warning"}

// RenderCSV writes s as one row per component counter, followed by TOTAL rows
// and one row per warning.
func RenderCSV(w io.Writer, s Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, name := range s.ComponentNames() {
		for _, c := range sortedKeys(s.PerComponent[name]) {
			row := []string{s.Category, name, c, formatFloat(s.PerComponent[name][c]), ""}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	for _, c := range sortedKeys(s.Totals) {
		if err := cw.Write([]string{s.Category, "TOTAL", c, formatFloat(s.Totals[c]), ""}); err != nil {
			return err
		}
	}

	for _, wn := range s.Warnings {
		if err := cw.Write([]string{s.Category, wn.Component, "", "", wn.Reason}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
