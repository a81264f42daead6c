// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/nhope/core"
	"github.com/devblok/nhope/gfx"
	"github.com/devblok/nhope/model"
)

func init() {
	runtime.LockOSThread()
}

// Essential globals
var (
	vkInstance core.Instance
	vkRenderer core.Renderer
	sdlWindow  *sdl.Window
	sdlSurface unsafe.Pointer
)

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

func newWindow(cfg core.RendererConfiguration) *sdl.Window {
	window, err := sdl.CreateWindow("Nhope",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.ScreenWidth),
		int32(cfg.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		log.WithError(err).Fatal("window creation failed")
	}
	return window
}

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.WithError(err).Fatal("cpu profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.WithError(err).Fatal("cpu profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.WithError(err).Fatal("trace")
		}
		if err := trace.Start(f); err != nil {
			log.WithError(err).Fatal("trace")
		}
		defer trace.Stop()
	}

	// A missing .env is fine, the environment itself still applies.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn(".env file ignored")
	}

	configuration, err := core.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.WithError(err).Fatal("sdl init failed")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.WithError(err).Fatal("vulkan library load failed")
	}
	defer sdl.VulkanUnloadLibrary()

	sdlWindow = newWindow(configuration.Renderer)

	{
		cfg := core.InstanceConfiguration{
			DebugMode:  *debug,
			Extensions: sdlWindow.VulkanGetInstanceExtensions(),
			Layers:     []string{},
		}

		vi, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg)
		if err != nil {
			log.WithError(err).Fatal("vulkan instance creation failed")
		}
		vkInstance = vi
		defer vkInstance.Destroy()
	}

	if srf, err := sdlWindow.VulkanCreateSurface(vkInstance.Inner()); err != nil {
		log.WithError(err).Fatal("vulkan surface creation failed")
	} else {
		sdlSurface = srf
		vkInstance.SetSurface(sdlSurface)
	}

	for _, info := range vkInstance.PhysicalDevicesInfo() {
		log.WithFields(log.Fields{
			"name":   info.Name,
			"memory": info.Memory,
		}).Info("physical device")
	}

	vkRenderer, err = core.NewVulkanRenderer(vkInstance, configuration.Renderer)
	if err != nil {
		log.WithError(err).Fatal("renderer creation failed")
	}

	if err := vkRenderer.Initialise(); err != nil {
		log.WithError(err).Fatal("renderer initialisation failed")
	}
	defer vkRenderer.Destroy()

	allocator := core.NewMemoryAllocator(vkRenderer.Device(), vkRenderer.PhysicalDevice())

	vertices := model.Triangle(
		glm.Vec4{1, 0, 0, 1},
		glm.Vec4{0, 1, 0, 1},
		glm.Vec4{0, 0, 1, 1},
	)
	triangle, err := core.NewVertexBuffer(vkRenderer.Device(), vertices, allocator)
	if err != nil {
		log.WithError(err).Fatal("vertex buffer creation failed")
	}
	defer triangle.Release()

	scheduler := gfx.NewScheduler(vkRenderer, configuration.Renderer.FrameTimeout, log.StandardLogger())

	timeService := core.NewTime(configuration.Time)
	metrics := core.NewMetrics(log.StandardLogger())

	var angle float32

EventLoop:
	for {
		select {
		case <-timeService.EventTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						break EventLoop
					}
				case *sdl.WindowEvent:
					if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
						scheduler.NotifyResize(gfx.Extent2D{
							Width:  uint32(et.Data1),
							Height: uint32(et.Data2),
						})
					}
				case *sdl.QuitEvent:
					break EventLoop
				}
			}
		case <-timeService.FpsTicker().C:
			metrics.StartFrame()
			angle += float32(metrics.Delta().Seconds())

			draws := []gfx.Draw{{
				Buffer:      triangle.Get(),
				VertexCount: uint32(len(vertices)),
				Transform:   glm.HomogRotate3D(angle, glm.Vec3{0, 0, 1}),
			}}

			if err := scheduler.Tick(draws); err != nil {
				if errors.Is(err, gfx.ErrFrameAcquisition) {
					log.WithError(err).Warn("frame dropped")
					continue
				}
				log.WithError(err).Error("render loop stopped")
				break EventLoop
			}
			metrics.EndFrame()
		}
	}

	scheduler.Close()
	log.WithFields(log.Fields{
		"frames":  scheduler.Frames(),
		"skipped": scheduler.SkippedFrames(),
	}).Info("render loop exited")

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.WithError(err).Fatal("memory profile")
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.WithError(err).Fatal("memory profile")
		}
	}
}
