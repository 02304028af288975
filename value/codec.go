package value

import (
	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
	"github.com/lib/pq/oid"
)

// NewConnInfo builds the pgtype.ConnInfo used for every text/binary
// encode and decode in this adapter. It starts from pgtype's default OID
// registrations and swaps in the shopspring-numeric codec so NUMERIC
// round-trips through decimal.Decimal instead of pgtype's own float-backed
// Numeric.
func NewConnInfo() *pgtype.ConnInfo {
	ci := pgtype.NewConnInfo()

	numericType, ok := ci.DataTypeForOID(uint32(oid.T_numeric))
	if ok {
		ci.RegisterDataType(pgtype.DataType{
			Value: &shopspring.Numeric{},
			Name:  numericType.Name,
			OID:   numericType.OID,
		})
	}

	return ci
}

// Cell is the tagged-union value exchanged with the engine, matching the
// engine contract's null/integer/float/text/blob variants. Aux carries the
// INTERVAL month count alongside Int's total microseconds (§3's datetime
// representation splits INTERVAL into a microsecond total plus a separate
// month field); it is unused by every other Kind.
type Cell struct {
	Kind CellKind
	Int  int64
	Flt  float64
	Str  string
	Blob []byte
	Aux  int64
}

// CellKind identifies which field of a Cell is populated.
type CellKind int

const (
	CellNull CellKind = iota
	CellInt
	CellFloat
	CellText
	CellBlob
)

// IsNull reports whether the cell carries SQL NULL.
func (c Cell) IsNull() bool { return c.Kind == CellNull }
