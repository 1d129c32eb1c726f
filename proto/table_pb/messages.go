package table_pb

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the Struct messages exchanged by TableService.
const (
	FieldName        = "name"
	FieldKeyColumn   = "key_column"
	FieldValueColumn = "value_column"
	FieldTable       = "table"
	FieldKey         = "key"
	FieldValue       = "value"
)

var ErrMissingField = errors.New("missing field")

// Schema is the wire form of a table schema.
type Schema struct {
	Name        string
	KeyColumn   string
	ValueColumn string
}

func (s Schema) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldName:        structpb.NewStringValue(s.Name),
		FieldKeyColumn:   structpb.NewStringValue(s.KeyColumn),
		FieldValueColumn: structpb.NewStringValue(s.ValueColumn),
	}}
}

// SchemaFromStruct decodes a schema. Only the name is required.
func SchemaFromStruct(st *structpb.Struct) (Schema, error) {
	name, err := stringField(st, FieldName, true)
	if err != nil {
		return Schema{}, err
	}
	keyCol, err := stringField(st, FieldKeyColumn, false)
	if err != nil {
		return Schema{}, err
	}
	valCol, err := stringField(st, FieldValueColumn, false)
	if err != nil {
		return Schema{}, err
	}
	return Schema{Name: name, KeyColumn: keyCol, ValueColumn: valCol}, nil
}

// Row addresses one row of a table. Keys travel as decimal strings since
// structpb numbers are float64 and lose precision above 2^53.
type Row struct {
	Table string
	Key   int64
	Value string
}

func (r Row) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldTable: structpb.NewStringValue(r.Table),
		FieldKey:   structpb.NewStringValue(strconv.FormatInt(r.Key, 10)),
		FieldValue: structpb.NewStringValue(r.Value),
	}}
}

// KeyStruct encodes a row reference without a value.
func KeyStruct(table string, key int64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldTable: structpb.NewStringValue(table),
		FieldKey:   structpb.NewStringValue(strconv.FormatInt(key, 10)),
	}}
}

// RowFromStruct decodes a row. The value is optional.
func RowFromStruct(st *structpb.Struct) (Row, error) {
	tbl, err := stringField(st, FieldTable, true)
	if err != nil {
		return Row{}, err
	}
	rawKey, err := stringField(st, FieldKey, true)
	if err != nil {
		return Row{}, err
	}
	key, err := strconv.ParseInt(rawKey, 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("field %q: %w", FieldKey, err)
	}
	val, err := stringField(st, FieldValue, false)
	if err != nil {
		return Row{}, err
	}
	return Row{Table: tbl, Key: key, Value: val}, nil
}

// HasValue reports whether a Get reply carries a value. Replies for
// missing keys have none.
func HasValue(st *structpb.Struct) bool {
	_, ok := st.GetFields()[FieldValue]
	return ok
}

// RowsToList encodes rows as a list of row structs.
func RowsToList(rows []Row) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(rows))}
	for _, r := range rows {
		out.Values = append(out.Values, structpb.NewStructValue(r.ToStruct()))
	}
	return out
}

func RowsFromList(lv *structpb.ListValue) ([]Row, error) {
	rows := make([]Row, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("row %d: not a struct", i)
		}
		r, err := RowFromStruct(st)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func SchemasToList(schemas []Schema) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(schemas))}
	for _, s := range schemas {
		out.Values = append(out.Values, structpb.NewStructValue(s.ToStruct()))
	}
	return out
}

func SchemasFromList(lv *structpb.ListValue) ([]Schema, error) {
	schemas := make([]Schema, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("schema %d: not a struct", i)
		}
		s, err := SchemaFromStruct(st)
		if err != nil {
			return nil, fmt.Errorf("schema %d: %w", i, err)
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

func stringField(st *structpb.Struct, name string, required bool) (string, error) {
	v, ok := st.GetFields()[name]
	if !ok || v.GetKind() == nil {
		if required {
			return "", fmt.Errorf("%w %q", ErrMissingField, name)
		}
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q: want string", name)
	}
	if required && s.StringValue == "" {
		return "", fmt.Errorf("%w %q", ErrMissingField, name)
	}
	return s.StringValue, nil
}
