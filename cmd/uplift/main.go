package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kovidgoyal/uplift"
	"github.com/kovidgoyal/uplift/scene"
)

var _ = fmt.Print

func usage() {
	fmt.Fprintln(os.Stderr, "usage: go run ./cmd/uplift [options] scene.yaml")
	flag.PrintDefaults()
}

func main() {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	config_path := flag.String("config", "", "TOML configuration file")
	verbose := flag.Bool("v", false, "log every frame and absorbed failure")
	texture := flag.String("texture", "", "texture to uplift")
	output := flag.String("output", "", "where to save the re-rendered texture, defaults to texture-rendered.png")
	system := flag.Int("system", -1, "index of the colour system to render the texture under, defaults to the uplifting system")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg := uplift.DefaultConfig()
	if *config_path != "" {
		if cfg, err = uplift.LoadConfig(*config_path); err != nil {
			return
		}
	}
	sc, err := scene.LoadFile(flag.Arg(0))
	if err != nil {
		return
	}
	e := uplift.NewEngine(uplift.WithConfig(cfg), uplift.WithLogger(logger))
	r, err := e.Frame(sc)
	if err != nil {
		return
	}
	print_report(sc, r)

	if *texture == "" {
		return
	}
	sys := sc.Uplifting.System
	if *system >= 0 {
		if *system >= len(sc.Systems) {
			err = fmt.Errorf("%w: system %d", scene.ErrInvalidIndex, *system)
			return
		}
		sys = *system
	}
	img, err := uplift.Open(*texture)
	if err != nil {
		return
	}
	si, err := e.UpliftImage(img)
	if err != nil {
		return
	}
	out, err := uplift.Render(si, sc.System(sys).Finalize(), e.Config().Workers)
	if err != nil {
		return
	}
	output_file := *output
	if output_file == "" {
		output_file = strings.TrimSuffix(*texture, filepath.Ext(*texture)) + "-rendered.png"
	}
	if err = uplift.Save(out, output_file); err == nil {
		fmt.Println("Rendered texture saved to:", output_file)
	}
}

func print_report(sc *scene.Scene, r uplift.Report) {
	primary := sc.Primary()
	fmt.Printf("frame %d: %d vertices in %s\n", r.Frame, len(r.Vertices), r.Duration)
	for i, v := range r.Vertices {
		want := sc.Vertices[i].Primary
		got := primary.Apply(v.Spectrum)
		fmt.Printf("%3d %-16s %-12s target %s achieved %s", i, v.Name, v.Status, scene.Hex(want), scene.Hex(got))
		if len(v.Errors) > 0 {
			worst := 0.0
			for _, e := range v.Errors {
				worst = max(worst, e)
			}
			fmt.Printf(" max error %.2e", worst)
		}
		if v.Points > 0 {
			fmt.Printf(" boundary %d points volume %.3e", v.Points, v.Volume)
		}
		if v.Err != nil {
			fmt.Printf(" [%s: %s]", v.Stage, v.Err)
		}
		fmt.Println()
	}
}
