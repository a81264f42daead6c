package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

const shaderSuffix = ".spv"

// loadShaderFilesFromDirectory gets the list of files that are compiled
// shaders. The file name carries the type before the .spv extension
// (shader.vert.spv, shader.frag.spv), anything else is skipped.
func loadShaderFilesFromDirectory(dir string) ([]string, []ShaderType, error) {
	var (
		shaders     []string
		shaderTypes []ShaderType
	)
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if strings.HasSuffix(f.Name(), shaderSuffix) {
			shader := strings.TrimSuffix(f.Name(), shaderSuffix)
			nodes := strings.Split(shader, ".")

			if len(nodes) != 2 {
				return nil
			}

			switch nodes[len(nodes)-1] {
			case "frag":
				shaderTypes = append(shaderTypes, FragmentShaderType)
				shaders = append(shaders, path)
			case "vert":
				shaderTypes = append(shaderTypes, VertexShaderType)
				shaders = append(shaders, path)
			default:
				return nil
			}
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return shaders, shaderTypes, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// SliceUint32 reslices bytes into a uint32, that is used
// to submit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}
