// Command framedemo runs the frame core headless for a fixed number of
// frames and prints what happened.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/framecore"
	"github.com/gogpu/framecore/asset"
	"github.com/gogpu/framecore/backend"
	"github.com/gogpu/framecore/engine"
	"github.com/gogpu/framecore/frame"
	"github.com/gogpu/framecore/resource"
	"github.com/gogpu/framecore/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	// Register the HAL backends and the halgpu factories for them.
	_ "github.com/gogpu/framecore/backend/halgpu"
	_ "github.com/gogpu/wgpu/hal/noop"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const blitWGSL = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(i32(idx) / 2) * 4.0 - 1.0;
    let y = f32(i32(idx) % 2) * 4.0 - 1.0;
    return vec4<f32>(x, y, 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) pos: vec4<f32>) -> @location(0) vec4<f32> {
    return textureSample(src, samp, pos.xy);
}
`

// frameLimit stops the loop after a number of ticks.
type frameLimit struct {
	eng   *engine.Engine
	limit int
	ticks int
}

func (f *frameLimit) OnTick(dt time.Duration) (engine.Control, error) {
	if f.limit > 0 && f.ticks >= f.limit {
		return engine.Exit, nil
	}
	f.ticks++
	return f.eng.OnTick(dt)
}

type options struct {
	backend    string
	width      int
	height     int
	frames     int
	inFlight   int
	tps        int
	texture    string
	shaderPath string
	validate   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.backend, "backend", "", "backend to use (default: best available)")
	flag.IntVar(&opts.width, "width", 800, "surface width")
	flag.IntVar(&opts.height, "height", 600, "surface height")
	flag.IntVar(&opts.frames, "frames", 120, "frames to run, 0 runs until interrupted")
	flag.IntVar(&opts.inFlight, "in-flight", framecore.DefaultFramesInFlight, "frames in flight")
	flag.IntVar(&opts.tps, "tps", engine.DefaultTicksPerSecond, "fixed updates per second")
	flag.StringVar(&opts.texture, "texture", "", "image file to upload")
	flag.StringVar(&opts.shaderPath, "shader", "", "WGSL file to reflect (default: built-in blit shader)")
	flag.BoolVar(&opts.validate, "validate", false, "enable backend validation")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	framecore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts options) error {
	log.Printf("available backends: %v", backend.Available())
	name, factory, err := backend.Lookup(opts.backend)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	mod, err := loadShader(opts.shaderPath)
	if err != nil {
		return fmt.Errorf("shader: %w", err)
	}
	for _, b := range mod.Bindings {
		log.Printf("shader %s: %s", mod.Label, b)
	}

	provider := gpucontext.NullWindowProvider{W: opts.width, H: opts.height, SF: 1}
	win := engine.NewGPUWindow(provider, nil, 0, 0)

	var tex resource.Handle
	eng, err := engine.New(win, factory, func(r *frame.Recorder) error {
		if tex.IsZero() {
			return nil
		}
		return r.Use(tex)
	},
		framecore.WithFramesInFlight(opts.inFlight),
		framecore.WithValidation(opts.validate),
		framecore.WithDeviceRecovery(1),
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer eng.Shutdown()

	upload := func(e *engine.Engine) error {
		if opts.texture == "" {
			return nil
		}
		img, err := asset.Load(opts.texture)
		if err != nil {
			return err
		}
		tex, err = asset.UploadMipmapped(e.Registry(), img, gputypes.TextureUsageTextureBinding)
		return err
	}
	if err := upload(eng); err != nil {
		return fmt.Errorf("texture: %w", err)
	}
	eng.OnRecreate(upload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loop := &engine.Loop{
		TicksPerSecond: opts.tps,
		Handler:        &frameLimit{eng: eng, limit: opts.frames},
	}
	start := time.Now()
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	st := eng.Stats()
	log.Printf("%s: %d ticks in %v (%d skipped, %d rebuilds, %d recoveries)",
		name, st.Ticks, time.Since(start).Round(time.Millisecond), st.SkippedTicks, st.Rebuilds, st.Recoveries)
	if s := eng.Scheduler(); s != nil {
		log.Printf("frames: %+v", s.Stats())
	}
	if r := eng.Registry(); r != nil {
		log.Printf("resources: %s", r.Stats())
	}
	return nil
}

func loadShader(path string) (*shader.Module, error) {
	if path == "" {
		return shader.ReflectWGSL("blit", blitWGSL)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return shader.ReflectWGSL(path, string(src))
}
