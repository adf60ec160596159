package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsInt64(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{name: "int64", value: int64(7), want: 7, ok: true},
		{name: "int", value: 7, want: 7, ok: true},
		{name: "int32", value: int32(7), want: 7, ok: true},
		{name: "float64", value: float64(7), want: 7, ok: true},
		{name: "string", value: "7", want: 7, ok: true},
		{name: "bytes", value: []byte("7"), want: 7, ok: true},
		{name: "non numeric string", value: "seven", ok: false},
		{name: "nil", value: nil, ok: false},
		{name: "bool", value: true, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsInt64(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
