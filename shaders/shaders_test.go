// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shaders_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/devblok/nhope/shaders"
)

const spirvMagic = 0x07230203

// The .spv pair only exists after go generate, so both outcomes are
// legitimate: generated bytecode must be SPIR-V, and an ungenerated
// tree must say how to fix itself.
func checkShader(t *testing.T, code []byte, err error) {
	t.Helper()
	if err != nil {
		if !strings.Contains(err.Error(), "go generate") {
			t.Errorf("missing-shader error carries no regeneration hint: %v", err)
		}
		return
	}
	if len(code) < 4 || len(code)%4 != 0 {
		t.Errorf("bytecode length %d is not a whole number of words", len(code))
		return
	}
	if binary.LittleEndian.Uint32(code[:4]) != spirvMagic {
		t.Error("bytecode does not start with the SPIR-V magic number")
	}
}

func TestVertex(t *testing.T) {
	code, err := shaders.Vertex()
	checkShader(t, code, err)
}

func TestFragment(t *testing.T) {
	code, err := shaders.Fragment()
	checkShader(t, code, err)
}
