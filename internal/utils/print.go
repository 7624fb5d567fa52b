package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iancoleman/orderedmap"
	"github.com/jedib0t/go-pretty/v6/table"
)

/**
 * Convert a struct into an ordered map keyed by its json tags
 * @param {interface{}} v - Struct value with json tags
 * @returns {*orderedmap.OrderedMap} Map whose key order follows the struct field order
 * @returns {error} Error if the value cannot be serialized
 */
func StructToOrderedMap(v interface{}) (*orderedmap.OrderedMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := orderedmap.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// PrintFormat 以表格形式输出到标准输出
func PrintFormat(rows []*orderedmap.OrderedMap) {
	FprintFormat(os.Stdout, rows)
}

/**
 * Render rows as a table
 * @param {io.Writer} w - Output
 * @param {[]*orderedmap.OrderedMap} rows - Rows, the first row decides the columns
 * @description
 * - Column headers are the upper-cased keys of the first row
 * - Missing values are rendered empty
 */
func FprintFormat(w io.Writer, rows []*orderedmap.OrderedMap) {
	if len(rows) == 0 {
		return
	}
	keys := rows[0].Keys()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := table.Row{}
	for _, k := range keys {
		header = append(header, strings.ToUpper(k))
	}
	t.AppendHeader(header)

	for _, row := range rows {
		r := table.Row{}
		for _, k := range keys {
			v, ok := row.Get(k)
			if !ok || v == nil {
				r = append(r, "")
				continue
			}
			// json 数字解码为 float64，整数按整数显示
			if f, isFloat := v.(float64); isFloat && f == float64(int64(f)) {
				v = int64(f)
			}
			r = append(r, fmt.Sprint(v))
		}
		t.AppendRow(r)
	}
	t.Render()
}
