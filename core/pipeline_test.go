package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/nhope/core"
	"github.com/devblok/nhope/model"
)

// fakeSpirv builds a minimal byte blob that passes the SPIR-V
// plausibility checks, it is not executable shader code.
func fakeSpirv(words int) []byte {
	code := make([]byte, 4*words)
	code[0] = 0x03
	code[1] = 0x02
	code[2] = 0x23
	code[3] = 0x07
	return code
}

func validConfig() core.PipelineConfig {
	return core.PipelineConfig{
		VertexShader:   fakeSpirv(8),
		FragmentShader: fakeSpirv(8),
		VertexLayout:   core.DefaultVertexLayout(),
		PushConstants:  core.DefaultPushConstantLayout(),
		ColorFormat:    vk.FormatB8g8r8a8Srgb,
	}
}

func TestPipelineConfigValidateAcceptsDefaultLayout(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestPipelineConfigValidateRejectsBadBytecode(t *testing.T) {
	cfg := validConfig()
	cfg.VertexShader = []byte{0xde, 0xad, 0xbe, 0xef}
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidShader)

	cfg = validConfig()
	cfg.FragmentShader = fakeSpirv(8)[:7]
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidShader)

	cfg = validConfig()
	cfg.FragmentShader = nil
	assert.ErrorIs(t, cfg.Validate(), core.ErrInvalidShader)
}

func TestPipelineConfigValidateRejectsMissingAttribute(t *testing.T) {
	cfg := validConfig()
	cfg.VertexLayout.Attributes = cfg.VertexLayout.Attributes[:2]
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)
}

func TestPipelineConfigValidateRejectsWrongAttributeFormat(t *testing.T) {
	cfg := validConfig()
	attrs := make([]vk.VertexInputAttributeDescription, len(cfg.VertexLayout.Attributes))
	copy(attrs, cfg.VertexLayout.Attributes)
	attrs[1].Format = vk.FormatR32g32b32Sfloat
	cfg.VertexLayout.Attributes = attrs
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)
}

func TestPipelineConfigValidateRejectsWrongStride(t *testing.T) {
	cfg := validConfig()
	bindings := make([]vk.VertexInputBindingDescription, len(cfg.VertexLayout.Bindings))
	copy(bindings, cfg.VertexLayout.Bindings)
	bindings[0].Stride = 32
	cfg.VertexLayout.Bindings = bindings
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)
}

func TestPipelineConfigValidateRejectsWrongPushConstants(t *testing.T) {
	cfg := validConfig()
	cfg.PushConstants = []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		Offset:     0,
		Size:       model.PushConstantSize / 2,
	}}
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)

	cfg.PushConstants = []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		Offset:     0,
		Size:       model.PushConstantSize,
	}}
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)

	cfg.PushConstants = nil
	assert.ErrorIs(t, cfg.Validate(), core.ErrLayoutMismatch)
}
