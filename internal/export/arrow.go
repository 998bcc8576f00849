// Package export writes result tables in columnar formats.
package export

import (
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/sdrun/internal/frame"
)

// TimeColumn names the index column of an exported table.
const TimeColumn = "time"

// Schema returns the Arrow schema for f: a non-null float64 time column
// followed by one nullable float64 column per frame column.
func Schema(f *frame.Frame) *arrow.Schema {
	fields := []arrow.Field{{Name: TimeColumn, Type: arrow.PrimitiveTypes.Float64}}
	for _, name := range f.Columns() {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes f as an Arrow IPC file with a single record batch. NaN
// values, which mark times a series does not cover, are written as nulls.
// The file footer needs a seekable destination such as *os.File.
func WriteArrow(w io.WriteSeeker, f *frame.Frame) error {
	mem := memory.NewGoAllocator()
	schema := Schema(f)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Float64Builder).AppendValues(f.Index(), nil)
	for i, name := range f.Columns() {
		s, _ := f.Series(name)
		valid := make([]bool, len(s.Values))
		for j, v := range s.Values {
			valid[j] = !math.IsNaN(v)
		}
		b.Field(i+1).(*array.Float64Builder).AppendValues(s.Values, valid)
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}
