// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"testing"
	"unsafe"

	"github.com/devblok/nhope/model"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestVertexLayoutMatchesShaderContract(t *testing.T) {
	bindings := model.VertexBindingDescriptions()
	require.Len(t, bindings, 1)
	assert.EqualValues(t, 40, bindings[0].Stride, "vec4 + vec2 + vec4 of float32")

	attrs := model.VertexAttributeDescriptions()
	require.Len(t, attrs, 3)

	assert.EqualValues(t, 0, attrs[0].Location)
	assert.Equal(t, vk.FormatR32g32b32a32Sfloat, attrs[0].Format)
	assert.EqualValues(t, 0, attrs[0].Offset)

	assert.EqualValues(t, 1, attrs[1].Location)
	assert.Equal(t, vk.FormatR32g32Sfloat, attrs[1].Format)
	assert.EqualValues(t, 16, attrs[1].Offset)

	assert.EqualValues(t, 2, attrs[2].Location)
	assert.Equal(t, vk.FormatR32g32b32a32Sfloat, attrs[2].Format)
	assert.EqualValues(t, 24, attrs[2].Offset)
}

func TestPushConstantBlockIsOneMat4(t *testing.T) {
	assert.EqualValues(t, 64, model.PushConstantSize)
	assert.EqualValues(t, unsafe.Sizeof(glm.Mat4{}), model.PushConstantSize)

	ranges := model.PushConstantRanges()
	require.Len(t, ranges, 1)
	assert.EqualValues(t, 0, ranges[0].Offset)
	assert.EqualValues(t, 64, ranges[0].Size)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit), ranges[0].StageFlags)
}

// interpolate evaluates the color the fragment stage would receive at
// barycentric coordinates (u, v, w) of a triangle, mirroring the
// pass-through shader pair: colors forwarded untouched from the vertex
// stage and interpolated linearly across the face.
func interpolate(verts []model.Vertex, u, v, w float32) glm.Vec4 {
	return verts[0].Color.Mul(u).Add(verts[1].Color.Mul(v)).Add(verts[2].Color.Mul(w))
}

func TestColorRoundTripWithIdentityTransform(t *testing.T) {
	red := glm.Vec4{1, 0, 0, 1}
	green := glm.Vec4{0, 1, 0, 1}
	blue := glm.Vec4{0, 0, 1, 1}
	verts := model.Triangle(red, green, blue)

	identity := glm.Ident4()

	// An identity push constant leaves positions untouched.
	for _, vert := range verts {
		assert.Equal(t, vert.Pos, identity.Mul4x1(vert.Pos))
	}

	// At each corner the interpolated fragment input equals the
	// corresponding vertex color exactly.
	assert.Equal(t, red, interpolate(verts, 1, 0, 0))
	assert.Equal(t, green, interpolate(verts, 0, 1, 0))
	assert.Equal(t, blue, interpolate(verts, 0, 0, 1))

	// Interior samples stay a convex combination of the inputs.
	center := interpolate(verts, 1.0/3, 1.0/3, 1.0/3)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0/3, center[i], 1e-6)
	}
	assert.InDelta(t, 1, center[3], 1e-6)
}
