package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output форматирует вывод deployerctl: таблицы и карточки в stdout,
// сообщения в stderr. В JSON режиме в stdout пишется только JSON.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout и stderr.
func NewOutput(jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: os.Stdout, errW: os.Stderr}
}

// Field — строка карточки объекта.
type Field struct {
	Key   string
	Value string
}

// list форматирует список значений поля ("-" для пустого).
func list(values []string) string {
	return dash(strings.Join(values, ", "))
}

// Print выводит список объектов таблицей или jsonData.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.table(headers, rows)
}

// Card выводит один объект парами "KEY: value" или jsonData.
func (o *Output) Card(fields []Field, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 1, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Key, f.Value)
	}
	_ = tw.Flush()
}

// table выводит строки под заголовками; короткие строки дополняются "-".
func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i := range cells {
			cells[i] = "-"
			if i < len(row) && row[i] != "" {
				cells[i] = row[i]
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Line выводит строку данных в stdout.
func (o *Output) Line(s string) {
	fmt.Fprintln(o.w, s)
}

// Success выводит сообщение в stderr (не мешает JSON в stdout).
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}
