package uplift

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kovidgoyal/go-parallel"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/kovidgoyal/uplift/csys"
	"github.com/kovidgoyal/uplift/spectrum"
	"github.com/kovidgoyal/uplift/srgb"
)

type fileSystem interface {
	Create(string) (io.WriteCloser, error)
	Open(string) (io.ReadCloser, error)
}

type localFS struct{}

func (localFS) Create(name string) (io.WriteCloser, error) { return os.Create(name) }
func (localFS) Open(name string) (io.ReadCloser, error)    { return os.Open(name) }

var fs fileSystem = localFS{}

// Format is a texture file format.
type Format int

const (
	UNKNOWN Format = iota
	JPEG
	PNG
	GIF
	TIFF
	WEBP
	BMP
)

var FormatExts = map[string]Format{
	"jpg":  JPEG,
	"jpeg": JPEG,
	"png":  PNG,
	"gif":  GIF,
	"tif":  TIFF,
	"tiff": TIFF,
	"webp": WEBP,
	"bmp":  BMP,
}

var format_names = map[Format]string{
	JPEG: "JPEG",
	PNG:  "PNG",
	GIF:  "GIF",
	TIFF: "TIFF",
	WEBP: "WEBP",
	BMP:  "BMP",
}

func (f Format) String() string {
	return format_names[f]
}

// ErrUnsupportedFormat means the given image format is not supported.
var ErrUnsupportedFormat = errors.New("uplift: unsupported image format")

// FormatFromExtension parses image format from filename extension:
// "jpg" (or "jpeg"), "png", "gif", "tif" (or "tiff"), "webp" and "bmp" are
// supported.
func FormatFromExtension(ext string) (Format, error) {
	if f, ok := FormatExts[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return f, nil
	}
	return UNKNOWN, ErrUnsupportedFormat
}

func FormatFromFilename(filename string) (Format, error) {
	return FormatFromExtension(filepath.Ext(filename))
}

// Decode reads a texture from r. Only the first frame of animated images is
// used.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return nil, err
	}
	return img, nil
}

// Open loads a texture from file.
func Open(filename string) (image.Image, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

type encodeConfig struct {
	jpegQuality         int
	gifNumColors        int
	gifDrawer           draw.Drawer
	pngCompressionLevel png.CompressionLevel
}

var defaultEncodeConfig = encodeConfig{
	jpegQuality:         95,
	gifNumColors:        256,
	pngCompressionLevel: png.DefaultCompression,
}

// EncodeOption sets an optional parameter for the Encode and Save functions.
type EncodeOption func(*encodeConfig)

// JPEGQuality sets the output JPEG quality, from 1 to 100. Default is 95.
func JPEGQuality(quality int) EncodeOption {
	return func(c *encodeConfig) {
		c.jpegQuality = quality
	}
}

// GIFNumColors sets the maximum number of colors in a GIF, from 1 to 256.
func GIFNumColors(numColors int) EncodeOption {
	return func(c *encodeConfig) {
		c.gifNumColors = numColors
	}
}

// GIFDrawer sets the drawer used to convert to the GIF palette, for example
// draw.FloydSteinberg.
func GIFDrawer(drawer draw.Drawer) EncodeOption {
	return func(c *encodeConfig) {
		c.gifDrawer = drawer
	}
}

func PNGCompressionLevel(level png.CompressionLevel) EncodeOption {
	return func(c *encodeConfig) {
		c.pngCompressionLevel = level
	}
}

// Encode writes img to w in the specified format. WEBP can be read but not
// written.
func Encode(w io.Writer, img image.Image, format Format, opts ...EncodeOption) error {
	cfg := defaultEncodeConfig
	for _, option := range opts {
		option(&cfg)
	}

	switch format {
	case JPEG:
		if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Opaque() {
			rgba := &image.RGBA{
				Pix:    nrgba.Pix,
				Stride: nrgba.Stride,
				Rect:   nrgba.Rect,
			}
			return jpeg.Encode(w, rgba, &jpeg.Options{Quality: cfg.jpegQuality})
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: cfg.jpegQuality})

	case PNG:
		encoder := png.Encoder{CompressionLevel: cfg.pngCompressionLevel}
		return encoder.Encode(w, img)

	case GIF:
		return gif.Encode(w, img, &gif.Options{NumColors: cfg.gifNumColors, Drawer: cfg.gifDrawer})

	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})

	case BMP:
		return bmp.Encode(w, img)
	}

	return ErrUnsupportedFormat
}

// Save saves img to filename, the format is determined by the extension.
func Save(img image.Image, filename string, opts ...EncodeOption) (err error) {
	f, err := FormatFromFilename(filename)
	if err != nil {
		return err
	}
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	err = Encode(file, img, f, opts...)
	errc := file.Close()
	if err == nil {
		err = errc
	}
	return err
}

// row_reader returns a function that reads the linear colour of pixel x in
// row y of img. Textures are sRGB encoded.
func row_reader(img image.Image) func(x, y int) colorconv.Vec3 {
	switch t := img.(type) {
	case *image.NRGBA:
		return func(x, y int) colorconv.Vec3 {
			i := t.PixOffset(x, y)
			s := t.Pix[i : i+3 : i+3]
			return colorconv.Vec3{srgb.From8Bit(s[0]), srgb.From8Bit(s[1]), srgb.From8Bit(s[2])}
		}
	case *image.Gray:
		return func(x, y int) colorconv.Vec3 {
			v := srgb.From8Bit(t.Pix[t.PixOffset(x, y)])
			return colorconv.Vec3{v, v, v}
		}
	case *image.NRGBA64:
		return func(x, y int) colorconv.Vec3 {
			c := t.NRGBA64At(x, y)
			return colorconv.Vec3{srgb.From16Bit(c.R), srgb.From16Bit(c.G), srgb.From16Bit(c.B)}
		}
	default:
		return func(x, y int) colorconv.Vec3 {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			return colorconv.Vec3{srgb.From16Bit(c.R), srgb.From16Bit(c.G), srgb.From16Bit(c.B)}
		}
	}
}

// UpliftImage converts every pixel of img to a spectrum. Rows are processed
// in parallel; identical colours are uplifted once per worker.
func (u *Uplifting) UpliftImage(img image.Image, workers int) (*SpectralImage, error) {
	b := img.Bounds()
	ans := NewSpectralImage(b)
	if b.Empty() {
		return ans, nil
	}
	read := row_reader(img)
	errs := make([]error, b.Dy())
	err := parallel.Run_in_parallel_over_range(workers, func(start, limit int) {
		cache := make(map[colorconv.Vec3]spectrum.Spectrum)
		for y := start; y < limit; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := read(x, y)
				s, found := cache[c]
				if !found {
					var err error
					if s, err = u.Uplift(c); err != nil && errs[y-b.Min.Y] == nil {
						errs[y-b.Min.Y] = fmt.Errorf("pixel (%d, %d): %w", x, y, err)
					}
					cache[c] = s
				}
				ans.SetSpectrum(x, y, s)
			}
		}
	}, b.Min.Y, b.Max.Y)
	if err != nil {
		return nil, err
	}
	return ans, errors.Join(errs...)
}

// UpliftImage uplifts img with the tessellation of the last frame.
func (e *Engine) UpliftImage(img image.Image) (*SpectralImage, error) {
	if e.uplifting == nil {
		return nil, ErrNotReady
	}
	return e.uplifting.UpliftImage(img, e.cfg.Workers)
}

// Render evaluates every spectrum of si under resp and encodes the result as
// 8-bit sRGB. resp should produce linear sRGB.
func Render(si *SpectralImage, resp csys.Response, workers int) (*image.NRGBA, error) {
	b := si.Bounds()
	ans := image.NewNRGBA(b)
	if b.Empty() {
		return ans, nil
	}
	err := parallel.Run_in_parallel_over_range(workers, func(start, limit int) {
		for y := start; y < limit; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				i := ans.PixOffset(x, y)
				s := ans.Pix[i : i+4 : i+4]
				s[0], s[1], s[2] = srgb.Vec8(resp.Apply(si.SpectrumAt(x, y)))
				s[3] = 255
			}
		}
	}, b.Min.Y, b.Max.Y)
	if err != nil {
		return nil, err
	}
	return ans, nil
}
