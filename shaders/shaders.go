// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shaders carries the built-in shader pair, compiled to
// SPIR-V and embedded into the binary. The pair consumes the vertex
// layout and push constant block declared in the model package.
//
// The compiled .spv files are build artifacts, not checked in: run
// `go generate ./shaders` with glslc on PATH before building a binary
// that relies on the built-in pair. Without them, configure
// NHOPE_SHADER_DIR or NHOPE_SHADER_ARCHIVE instead.
package shaders

//go:generate glslc assets/shader.vert -o assets/shader.vert.spv
//go:generate glslc assets/shader.frag -o assets/shader.frag.spv

import (
	"fmt"

	"github.com/gobuffalo/packr"
)

var box packr.Box

func init() {
	box = packr.NewBox("./assets")
}

// Vertex returns the compiled built-in vertex shader.
func Vertex() ([]byte, error) {
	return find("shader.vert.spv")
}

// Fragment returns the compiled built-in fragment shader.
func Fragment() ([]byte, error) {
	return find("shader.frag.spv")
}

func find(name string) ([]byte, error) {
	code, err := box.Find(name)
	if err != nil {
		return nil, fmt.Errorf("built-in shader %s not compiled, run go generate ./shaders: %w", name, err)
	}
	return code, nil
}
