// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the vertex contract shared between the engine
// and its shader pair. The attribute locations and the push constant
// block below are bit-exact with the compiled shaders; changing either
// side requires recompiling the other in lockstep.
package model

import (
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

// Vertex is the engine vertex. Pos feeds location 0, UV location 1
// (currently unused downstream), Color location 2.
type Vertex struct {
	Pos   glm.Vec4
	UV    glm.Vec2
	Color glm.Vec4
}

// PushConstant is the per-draw block delivered with the draw command,
// visible to the vertex stage at offset 0. One mat4, 64 bytes.
type PushConstant struct {
	Transform glm.Mat4
}

// PushConstantSize is the size of the per-draw push constant block.
const PushConstantSize = uint32(unsafe.Sizeof(PushConstant{}))

// VertexSize is the stride of one Vertex in a vertex buffer.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// VertexBindingDescriptions return Vulkan vertex binding descriptors
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan attribute descriptors
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.UV)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
	}
}

// PushConstantRanges returns the pipeline's push constant ranges.
func PushConstantRanges() []vk.PushConstantRange {
	return []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       PushConstantSize,
	}}
}

// Triangle builds three vertices forming a triangle with the given
// corner colors. Mostly useful for bring-up and tests.
func Triangle(a, b, c glm.Vec4) []Vertex {
	return []Vertex{
		{Pos: glm.Vec4{-1.0, 1.0, 0.0, 1.0}, UV: glm.Vec2{0, 1}, Color: a},
		{Pos: glm.Vec4{1.0, 1.0, 0.0, 1.0}, UV: glm.Vec2{1, 1}, Color: b},
		{Pos: glm.Vec4{0.0, -1.0, 0.0, 1.0}, UV: glm.Vec2{0.5, 0}, Color: c},
	}
}
