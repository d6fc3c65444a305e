package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		target  any
		want    Shape
		wantErr error
	}{
		{"table", &Table{Name: "widgets", Columns: []string{"id"}, PrimaryKey: []string{"id"}}, ShapeTable, nil},
		{"mapped class", Mapped[widget]("widgets"), ShapeMappedClass, nil},
		{"nil table", (*Table)(nil), ShapeUnknown, ErrUnsupportedTarget},
		{"unnamed table", &Table{}, ShapeUnknown, ErrUnsupportedTarget},
		{"mapped class without constructor", &MappedClass{Name: "widgets"}, ShapeUnknown, ErrUnsupportedTarget},
		{"bare struct", widget{}, ShapeUnknown, ErrUnsupportedTarget},
		{"string", "widgets", ShapeUnknown, ErrUnsupportedTarget},
		{"nil", nil, ShapeUnknown, ErrUnsupportedTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.target)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMappedNewReturnsFreshModels(t *testing.T) {
	mc := Mapped[widget]("widgets")
	a, ok := mc.New().(*widget)
	require.True(t, ok)
	b := mc.New().(*widget)
	a.Name = "changed"
	assert.Empty(t, b.Name)
	assert.NotSame(t, a, b)
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "table", ShapeTable.String())
	assert.Equal(t, "mapped-class", ShapeMappedClass.String())
	assert.Equal(t, "unknown", ShapeUnknown.String())
}

func TestTableHasColumn(t *testing.T) {
	tbl := &Table{Name: "t", Columns: []string{"id", "name"}}
	assert.True(t, tbl.HasColumn("name"))
	assert.False(t, tbl.HasColumn("email"))
}

func TestTargetName(t *testing.T) {
	assert.Equal(t, "t", TargetName(&Table{Name: "t"}))
	assert.Equal(t, "w", TargetName(Mapped[widget]("w")))
	assert.Equal(t, "", TargetName("w"))
	assert.Equal(t, "", TargetName((*Table)(nil)))
}
