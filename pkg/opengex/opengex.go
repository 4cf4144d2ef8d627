// Package opengex loads OpenGEX (OpenDDL) scene files into baked,
// render-ready mesh buffers.
//
// Loading happens in two passes. The scanner reads the document one line at
// a time, tracking bracket depth with a stack of open regions, and fills
// node, object, material and animation builders. The baker then resolves
// each geometry node against its object, applies the node transform and the
// document up axis, and flattens the result into BakedModels.
package opengex

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-ogex/pkg/math"
)

// Diagnostic sentinel errors.
var (
	ErrSourceNotFound      = errors.New("opengex source not found")
	ErrMalformedLine       = errors.New("malformed opengex line")
	ErrUnresolvedReference = errors.New("unresolved object reference")
)

// Metric holds the document-wide unit and axis conventions.
type Metric struct {
	Distance float32 // Distance scale (metadata only, not applied to geometry)
	Angle    float32 // Angle scale
	Time     float32 // Time scale
	Up       string  // Up axis: "x", "y" or "z"
	Forward  string  // Forward axis, empty if not declared
}

// DefaultMetric returns the OpenGEX defaults.
func DefaultMetric() Metric {
	return Metric{
		Distance: 1.0,
		Angle:    1.0,
		Time:     1.0,
		Up:       "y",
	}
}

// Attrib identifies what a texture map is used for.
type Attrib int

const (
	AttribUnknown  Attrib = iota
	AttribDiffuse         // Base colour map
	AttribNormal          // Normal map
	AttribSpecular        // Specular map
)

// String returns the OpenGEX attrib name.
func (a Attrib) String() string {
	switch a {
	case AttribDiffuse:
		return "diffuse"
	case AttribNormal:
		return "normal"
	case AttribSpecular:
		return "specular"
	default:
		return "unknown"
	}
}

func parseAttrib(s string) Attrib {
	switch s {
	case "diffuse":
		return AttribDiffuse
	case "normal":
		return AttribNormal
	case "specular":
		return AttribSpecular
	default:
		return AttribUnknown
	}
}

// CurveType is the interpolation curve of an animation Time or Value block.
type CurveType int

const (
	CurveUnknown CurveType = iota
	CurveLinear
	CurveBezier
)

// String returns the OpenGEX curve name.
func (c CurveType) String() string {
	switch c {
	case CurveLinear:
		return "linear"
	case CurveBezier:
		return "bezier"
	default:
		return "unknown"
	}
}

func parseCurve(s string) CurveType {
	switch s {
	case "linear":
		return CurveLinear
	case "bezier":
		return CurveBezier
	default:
		return CurveUnknown
	}
}

// KeyKind describes the shape of a Key's data.
type KeyKind int

const (
	KeySingle       KeyKind = iota // float
	KeyDouble                      // float[2]
	KeyTriple                      // float[3]
	KeyQuad                        // float[4]
	KeySixteen                     // float[16]
	KeyPlusControl                 // kind = "+control"
	KeyMinusControl                // kind = "-control"
)

// String returns a human-readable key kind.
func (k KeyKind) String() string {
	switch k {
	case KeySingle:
		return "single"
	case KeyDouble:
		return "double"
	case KeyTriple:
		return "triple"
	case KeyQuad:
		return "quad"
	case KeySixteen:
		return "sixteen"
	case KeyPlusControl:
		return "+control"
	case KeyMinusControl:
		return "-control"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// keyKindForArity maps a float array width to a key kind.
func keyKindForArity(arity int) KeyKind {
	switch arity {
	case 2:
		return KeyDouble
	case 3:
		return KeyTriple
	case 4:
		return KeyQuad
	case 16:
		return KeySixteen
	default:
		return KeySingle
	}
}

// TargetKind identifies the transform channel a Track animates.
type TargetKind int

const (
	TargetUnknown TargetKind = iota
	TargetXPos
	TargetYPos
	TargetZPos
	TargetXRot
	TargetYRot
	TargetZRot
	TargetTransform
)

var targetNames = map[string]TargetKind{
	"xpos":      TargetXPos,
	"ypos":      TargetYPos,
	"zpos":      TargetZPos,
	"xrot":      TargetXRot,
	"yrot":      TargetYRot,
	"zrot":      TargetZRot,
	"transform": TargetTransform,
}

// String returns the conventional local name for the target.
func (t TargetKind) String() string {
	for name, kind := range targetNames {
		if kind == t {
			return name
		}
	}
	return "unknown"
}

// Key is one sampled control point on a curve.
type Key struct {
	Floats []float32
	Kind   KeyKind
}

// Curve is the Time or Value half of a Track.
type Curve struct {
	Type CurveType
	Keys []Key
}

// Track is one animated channel.
type Track struct {
	Target    TargetKind
	TargetRef string // Referenced structure name without sigil
	Time      Curve
	Value     Curve
}

// Animation holds the keyframe tracks attached to a node.
type Animation struct {
	Begin  float32
	End    float32
	Tracks []Track
}

// clone returns a deep copy so baked models never share key slices.
func (a *Animation) clone() Animation {
	if a == nil {
		return Animation{}
	}
	out := Animation{Begin: a.Begin, End: a.End}
	if len(a.Tracks) > 0 {
		out.Tracks = make([]Track, len(a.Tracks))
		for i, tr := range a.Tracks {
			out.Tracks[i] = Track{
				Target:    tr.Target,
				TargetRef: tr.TargetRef,
				Time:      tr.Time.clone(),
				Value:     tr.Value.clone(),
			}
		}
	}
	return out
}

func (c Curve) clone() Curve {
	out := Curve{Type: c.Type}
	if len(c.Keys) > 0 {
		out.Keys = make([]Key, len(c.Keys))
		for i, k := range c.Keys {
			out.Keys[i] = Key{Kind: k.Kind, Floats: append([]float32(nil), k.Floats...)}
		}
	}
	return out
}

// Texture is a texture map bound to a material.
type Texture struct {
	Path      string
	Attrib    Attrib
	Transform [16]float32 // Raw texcoord transform, identity unless declared
}

// Material is a surface description referenced by geometry nodes.
type Material struct {
	Name          string
	Ref           string // Structure name without sigil, used by MaterialRef
	Textures      []Texture
	DiffuseColor  [3]float32
	SpecularColor [3]float32
	SpecularPower float32
}

// DiffuseTexture returns the path of the material's diffuse map.
// When several diffuse textures are declared the last one wins.
func (m *Material) DiffuseTexture() (string, bool) {
	path, found := "", false
	for _, tex := range m.Textures {
		if tex.Attrib == AttribDiffuse {
			path, found = tex.Path, true
		}
	}
	return path, found
}

// MaterialBinding is one MaterialRef entry on a geometry node.
type MaterialBinding struct {
	Index uint32
	Ref   string
}

// GeometryObject is raw mesh data referenced by name from geometry nodes.
type GeometryObject struct {
	Name      string
	Mesh      string // Primitive type, e.g. "triangles"
	Vertices  [][3]float32
	Normals   [][3]float32
	TexCoords [][2]float32
	Indices   []uint32
}

// BakedModel is one geometry node's mesh in world space.
type BakedModel struct {
	Name        string // Node name
	Mesh        string // Primitive type of the source object
	Vertices    [][3]float32
	Normals     [][3]float32
	TexCoords   [][2]float32
	Indices     []uint32
	MaterialRef string
	Animation   Animation
}

// identityRaw is the default raw transform for nodes and textures.
var identityRaw = [16]float32(math.Identity())
