package table_pb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRow_LargeKeysSurvive(t *testing.T) {
	t.Parallel()

	for _, key := range []int64{math.MaxInt64, math.MinInt64, 1<<53 + 1} {
		got, err := RowFromStruct(Row{Table: "PUB.tbl1", Key: key, Value: "v"}.ToStruct())
		require.NoError(t, err)
		assert.Equal(t, key, got.Key)
	}
}

func TestRowFromStruct_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   map[string]any
	}{
		{"missing table", map[string]any{"key": "1"}},
		{"missing key", map[string]any{"table": "t"}},
		{"numeric key", map[string]any{"table": "t", "key": 1.0}},
		{"bad key", map[string]any{"table": "t", "key": "one"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, err := structpb.NewStruct(tc.in)
			require.NoError(t, err)
			_, err = RowFromStruct(st)
			assert.Error(t, err)
		})
	}
}

func TestSchemaFromStruct_OptionalColumns(t *testing.T) {
	t.Parallel()

	st, err := structpb.NewStruct(map[string]any{"name": "PUB.tbl1"})
	require.NoError(t, err)

	s, err := SchemaFromStruct(st)
	require.NoError(t, err)
	assert.Equal(t, Schema{Name: "PUB.tbl1"}, s)

	_, err = SchemaFromStruct(&structpb.Struct{})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestRowsFromList_RejectsNonStruct(t *testing.T) {
	t.Parallel()

	_, err := RowsFromList(&structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue("x")}})
	assert.Error(t, err)

	rows, err := RowsFromList(RowsToList([]Row{{Table: "t", Key: 2, Value: "b"}, {Table: "t", Key: 1}}))
	require.NoError(t, err)
	assert.Equal(t, []Row{{Table: "t", Key: 2, Value: "b"}, {Table: "t", Key: 1}}, rows)
}
