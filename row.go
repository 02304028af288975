package wire

import (
	"context"
	"errors"
	"fmt"

	"github.com/latticedb/pgwire/pkg/buffer"
	"github.com/latticedb/pgwire/pkg/types"
	"github.com/latticedb/pgwire/value"
	"github.com/lib/pq/oid"
)

// Columns represent a collection of columns
type Columns []Column

// Define writes the table RowDescription headers for the given table and
// the containing columns. formats supplies the per-column result format
// (broadcast per the usual 0/1/N protocol rule) and is recorded on each
// Column so the matching Write call encodes with the same format.
func (columns Columns) Define(ctx context.Context, writer buffer.FrameWriter, formats []FormatCode) error {
	writer.Start(types.ServerRowDescription)
	writer.AddInt16(int16(len(columns)))

	for i := range columns {
		switch {
		case len(formats) == 1:
			columns[i].Format = formats[0]
		case i < len(formats):
			columns[i].Format = formats[i]
		}
		columns[i].Define(ctx, writer)
	}

	return writer.End()
}

// Write writes the given column values back to the client using the
// predefined table column types and format encoders (text/binary).
func (columns Columns) Write(ctx context.Context, writer buffer.FrameWriter, srcs []interface{}) (err error) {
	if len(srcs) != len(columns) {
		return fmt.Errorf("unexpected columns, %d columns are defined inside the given table but %d were given", len(columns), len(srcs))
	}

	writer.Start(types.ServerDataRow)
	writer.AddInt16(int16(len(columns)))

	for index, column := range columns {
		err = column.Write(ctx, writer, srcs[index])
		if err != nil {
			return err
		}
	}

	return writer.End()
}

// Column represents a table column and its attributes such as name, type and
// encode formatter.
// https://www.postgresql.org/docs/8.3/catalog-pg-attribute.html
type Column struct {
	Table        int32  // table id
	Name         string // column name
	AttrNo       int16  // column attribute no (optional)
	Oid          oid.Oid
	Width        int16
	TypeModifier int32
	Format       FormatCode
}

// Define writes the column header values to the given writer.
// This method is used to define a column inside RowDescription message defining
// the column type, width, and name.
func (column Column) Define(ctx context.Context, writer buffer.FrameWriter) {
	writer.AddString(column.Name)
	writer.AddNullTerminate()
	writer.AddInt32(column.Table)
	writer.AddInt16(column.AttrNo)
	writer.AddInt32(int32(column.Oid))
	writer.AddInt16(column.Width)
	writer.AddInt32(column.TypeModifier)
	writer.AddInt16(int16(column.Format))
}

// Write encodes the given source value using the column type definition and
// connection info, appending the encoded bytes (or a -1 length word for
// SQL NULL) to the given write buffer. src is either a value.Cell produced
// by the engine executor or a plain Go value (used directly by tests and
// by any caller that already has a native value), dispatched through
// value.ForColumn for the datetime/numeric/boolean OIDs whose wire
// representation differs from pgtype's own generic encoding of that Go
// type (§3's "Datetime representation" invariant).
func (column Column) Write(ctx context.Context, writer buffer.FrameWriter, src interface{}) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	ci := TypeInfo(ctx)
	if ci == nil {
		return errors.New("postgres connection info has not been defined inside the given context")
	}

	typed, has := ci.DataTypeForOID(uint32(column.Oid))
	if !has {
		return fmt.Errorf("unknown data type: %v", column.Oid)
	}

	val := typed.Value
	if cell, ok := src.(value.Cell); ok {
		val, err = value.ForColumn(column.Oid, cell, typed.Value)
		if err != nil {
			return err
		}
	} else if err = typed.Value.Set(src); err != nil {
		return err
	}

	encoder := column.Format.Encoder(val)
	bb, err := encoder(ci, nil)
	if err != nil {
		return err
	}

	if bb == nil {
		writer.AddInt32(-1)
		return nil
	}

	writer.AddInt32(int32(len(bb)))
	writer.AddBytes(bb)
	return nil
}
