package core_test

import (
	"testing"

	"github.com/devblok/nhope/core"
)

func TestSliceUint32Length(t *testing.T) {
	data := make([]byte, 128)
	sliced := core.SliceUint32(data)
	if len(sliced) != 32 {
		t.Errorf("expected 32 words, got %d", len(sliced))
	}
}

func BenchmarkSliceUint32Small(b *testing.B) {
	data := make([]byte, 100)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Medium(b *testing.B) {
	data := make([]byte, 1000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}

func BenchmarkSliceUint32Big(b *testing.B) {
	data := make([]byte, 100000)
	for idx := 0; idx < b.N; idx++ {
		core.SliceUint32(data)
	}
}
