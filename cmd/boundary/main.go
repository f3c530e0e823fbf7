package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang/geo/r3"

	"github.com/kovidgoyal/uplift"
	"github.com/kovidgoyal/uplift/scene"
)

var _ = fmt.Print

type vertex struct {
	Name      string       `json:"name"`
	Status    string       `json:"status"`
	Primary   string       `json:"primary"`
	Spectrum  []float64    `json:"spectrum"`
	Center    [3]float64   `json:"center,omitempty"`
	Points    [][3]float64 `json:"points,omitempty"`
	Triangles [][3]int     `json:"triangles,omitempty"`
	Volume    float64      `json:"volume,omitempty"`
	Tetra     int          `json:"tetrahedra,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func vec(p r3.Vector) [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

func main() {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}()
	if len(os.Args) == 1 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/boundary scene.yaml [output.json]")
		os.Exit(1)
	}
	sc, err := scene.LoadFile(os.Args[1])
	if err != nil {
		return
	}
	e := uplift.NewEngine(uplift.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	r, err := e.Frame(sc)
	if err != nil {
		return
	}
	ans := make([]vertex, len(r.Vertices))
	for i, v := range r.Vertices {
		ans[i] = vertex{Name: v.Name, Status: v.Status.String(), Primary: scene.Hex(sc.Vertices[i].Primary), Spectrum: v.Spectrum.Slice()}
		if v.Err != nil {
			ans[i].Error = v.Err.Error()
		}
		if h := e.Hull(i); h != nil {
			ans[i].Center, ans[i].Triangles, ans[i].Volume = vec(h.Center), h.Triangles, h.Volume
		}
		if b := e.Boundary(i); b != nil {
			ans[i].Points = make([][3]float64, len(b.Points))
			for j, p := range b.Points {
				ans[i].Points[j] = vec(p)
			}
		}
		if t := e.Tessellation(i); t != nil {
			ans[i].Tetra = len(t.Elements)
		}
	}
	b, err := json.MarshalIndent(ans, "", "  ")
	if err != nil {
		return
	}
	if len(os.Args) == 3 {
		if err = os.WriteFile(os.Args[2], b, 0o666); err == nil {
			fmt.Println("Boundaries saved to:", os.Args[2])
		}
		return
	}
	_, err = os.Stdout.Write(append(b, '\n'))
}
