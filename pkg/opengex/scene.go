package opengex

import (
	"bytes"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Option configures loading.
type Option func(*options)

type options struct {
	log     *zap.Logger
	normals NormalMode
}

// WithLogger routes diagnostics and load progress to log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithNormalMode selects how normals are transformed. The default is
// NormalAffine.
func WithNormalMode(mode NormalMode) Option {
	return func(o *options) { o.normals = mode }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scene is a loaded OpenGEX document. It is read-only after loading and
// safe for concurrent readers.
type Scene struct {
	Metric      Metric
	Models      []BakedModel
	Materials   []Material
	Diagnostics []Diagnostic
}

// DiffuseTexture pairs a material's diffuse map with its diffuse colour.
type DiffuseTexture struct {
	Path  string // Empty when the material has no diffuse map
	Color [3]float32
}

// Open loads the file at path. It never fails: a missing or unreadable file
// yields an empty scene carrying a SourceNotFound diagnostic.
func Open(path string, opts ...Option) *Scene {
	o := buildOptions(opts)
	f, err := os.Open(path)
	if err != nil {
		return sourceNotFound(path, err, o)
	}
	defer f.Close()

	o.log.Debug("loading opengex scene", zap.String("path", path))
	return decode(f, path, o)
}

// Decode loads a scene from r.
func Decode(r io.Reader, opts ...Option) *Scene {
	return decode(r, "", buildOptions(opts))
}

// Parse loads a scene from an in-memory document.
func Parse(data []byte, opts ...Option) *Scene {
	return Decode(bytes.NewReader(data), opts...)
}

func decode(r io.Reader, path string, o options) *Scene {
	diags := &diagnostics{log: o.log}
	src := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	s := newScanner(o.log, diags)
	if err := s.scan(src); err != nil {
		return sourceNotFound(path, err, o)
	}

	b := &baker{
		objects: s.objects,
		swap:    axisSwap(s.metric.Up),
		normals: o.normals,
		diags:   diags,
		log:     o.log,
	}
	models := b.bake(s.nodes)

	materials := make([]Material, len(s.materials))
	for i, m := range s.materials {
		materials[i] = *m
	}

	scene := &Scene{
		Metric:      s.metric,
		Models:      models,
		Materials:   materials,
		Diagnostics: diags.list,
	}
	o.log.Info("opengex scene loaded",
		zap.String("path", path),
		zap.String("up", scene.Metric.Up),
		zap.Int("models", len(scene.Models)),
		zap.Int("materials", len(scene.Materials)),
		zap.Int("vertices", scene.TotalVertexCount()),
		zap.Int("diagnostics", len(scene.Diagnostics)))
	return scene
}

func sourceNotFound(path string, err error, o options) *Scene {
	diags := &diagnostics{log: o.log}
	diags.add(Diagnostic{
		Kind:    DiagSourceNotFound,
		Path:    path,
		Message: err.Error(),
		Err:     err,
	})
	return &Scene{Metric: DefaultMetric(), Diagnostics: diags.list}
}

// Err combines every diagnostic into one error, or returns nil.
func (s *Scene) Err() error {
	return combine(s.Diagnostics)
}

// Vertices returns the world-space positions of each model, in model order.
func (s *Scene) Vertices() [][][3]float32 {
	out := make([][][3]float32, len(s.Models))
	for i := range s.Models {
		out[i] = s.Models[i].Vertices
	}
	return out
}

// Normals returns the transformed normals of each model, in model order.
func (s *Scene) Normals() [][][3]float32 {
	out := make([][][3]float32, len(s.Models))
	for i := range s.Models {
		out[i] = s.Models[i].Normals
	}
	return out
}

// Indices returns the index buffer of each model, in model order.
func (s *Scene) Indices() [][]uint32 {
	out := make([][]uint32, len(s.Models))
	for i := range s.Models {
		out[i] = s.Models[i].Indices
	}
	return out
}

// TexCoords returns the texture coordinates of models that have any.
// Models without texcoords are skipped, so positions do not line up with
// Models.
func (s *Scene) TexCoords() [][][2]float32 {
	var out [][][2]float32
	for i := range s.Models {
		if len(s.Models[i].TexCoords) > 0 {
			out = append(out, s.Models[i].TexCoords)
		}
	}
	return out
}

// DiffuseTextures returns one entry per material in document order.
func (s *Scene) DiffuseTextures() []DiffuseTexture {
	out := make([]DiffuseTexture, len(s.Materials))
	for i := range s.Materials {
		path, _ := s.Materials[i].DiffuseTexture()
		out[i] = DiffuseTexture{Path: path, Color: s.Materials[i].DiffuseColor}
	}
	return out
}

// DiffuseTexture returns the diffuse map path of the material named ref.
// The sigil is optional: "$mat1" and "mat1" are the same material. When
// several materials share ref, the last diffuse map among them wins; this
// differs from MaterialByRef, which returns the first material.
func (s *Scene) DiffuseTexture(ref string) (string, bool) {
	ref = bareName(ref)
	path, found := "", false
	for i := range s.Materials {
		if s.Materials[i].Ref != ref {
			continue
		}
		if p, ok := s.Materials[i].DiffuseTexture(); ok {
			path, found = p, true
		}
	}
	return path, found
}

// MaterialByRef returns the first material named ref, matching how geometry
// objects resolve. DiffuseTexture instead reports the last diffuse map of
// any material named ref.
func (s *Scene) MaterialByRef(ref string) (*Material, bool) {
	ref = bareName(ref)
	for i := range s.Materials {
		if s.Materials[i].Ref == ref {
			return &s.Materials[i], true
		}
	}
	return nil, false
}

// ModelByName returns the first model whose node is called name.
func (s *Scene) ModelByName(name string) (*BakedModel, bool) {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i], true
		}
	}
	return nil, false
}

// HasAnimation reports whether any model carries animation tracks.
func (s *Scene) HasAnimation() bool {
	for i := range s.Models {
		if len(s.Models[i].Animation.Tracks) > 0 {
			return true
		}
	}
	return false
}

// TotalVertexCount returns the number of vertices across all models.
func (s *Scene) TotalVertexCount() int {
	n := 0
	for i := range s.Models {
		n += len(s.Models[i].Vertices)
	}
	return n
}

// TotalIndexCount returns the number of indices across all models.
func (s *Scene) TotalIndexCount() int {
	n := 0
	for i := range s.Models {
		n += len(s.Models[i].Indices)
	}
	return n
}
