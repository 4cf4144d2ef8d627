package opengex

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-ogex/pkg/math"
)

// NormalMode selects how normals are carried into world space.
type NormalMode int

const (
	// NormalAffine transforms normals exactly like positions (w = 1).
	NormalAffine NormalMode = iota
	// NormalInverseTranspose uses the inverse-transpose of the node matrix
	// and renormalizes. Correct under non-uniform scale.
	NormalInverseTranspose
)

// String returns the config spelling of the mode.
func (m NormalMode) String() string {
	switch m {
	case NormalInverseTranspose:
		return "inverse-transpose"
	default:
		return "affine"
	}
}

// ParseNormalMode parses a config value produced by NormalMode.String.
func ParseNormalMode(s string) (NormalMode, error) {
	switch s {
	case "", "affine":
		return NormalAffine, nil
	case "inverse-transpose":
		return NormalInverseTranspose, nil
	default:
		return NormalAffine, fmt.Errorf("unknown normal mode %q (want affine or inverse-transpose)", s)
	}
}

// axisSwap returns the component swap for the document up axis.
func axisSwap(up string) func([3]float32) [3]float32 {
	switch up {
	case "z":
		return func(v [3]float32) [3]float32 { return [3]float32{v[0], v[2], v[1]} }
	case "x":
		return func(v [3]float32) [3]float32 { return [3]float32{v[1], v[0], v[2]} }
	default:
		return func(v [3]float32) [3]float32 { return v }
	}
}

// baker resolves scanned nodes into world-space models.
type baker struct {
	objects []*GeometryObject
	swap    func([3]float32) [3]float32
	normals NormalMode
	diags   *diagnostics
	log     *zap.Logger
}

// bake produces one BakedModel per geometry node whose ObjectRef resolves,
// in node order. Nodes are in document order so parents are always
// resolved before their children.
func (b *baker) bake(nodes []*geometryNode) []BakedModel {
	models := make([]BakedModel, 0, len(nodes))
	for _, n := range nodes {
		n.world = math.Mat4(n.raw)
		if n.parent != nil {
			n.world = n.parent.world.Mul(n.world)
		}
		if !n.geometry {
			continue
		}

		obj := b.object(n.objectRef)
		if obj == nil {
			msg := fmt.Sprintf("no geometry object named %q", n.objectRef)
			if n.objectRef == "" {
				msg = "node has no object reference"
			}
			b.diags.add(Diagnostic{
				Kind:    DiagUnresolvedReference,
				Line:    n.line,
				Keyword: "GeometryNode",
				Node:    n.name,
				Message: msg,
			})
			continue
		}
		models = append(models, b.model(n, obj))
	}
	b.log.Debug("baked models", zap.Int("nodes", len(nodes)), zap.Int("models", len(models)))
	return models
}

// object returns the first object with the given name.
func (b *baker) object(name string) *GeometryObject {
	if name == "" {
		return nil
	}
	for _, obj := range b.objects {
		if obj.Name == name {
			return obj
		}
	}
	return nil
}

func (b *baker) model(n *geometryNode, obj *GeometryObject) BakedModel {
	m := BakedModel{
		Name:      n.name,
		Mesh:      obj.Mesh,
		Vertices:  make([][3]float32, len(obj.Vertices)),
		Normals:   make([][3]float32, len(obj.Normals)),
		TexCoords: append([][2]float32(nil), obj.TexCoords...),
		Indices:   append([]uint32(nil), obj.Indices...),
		Animation: n.animation.clone(),
	}

	// Most exported nodes carry no transform.
	identity := n.world.IsIdentity()
	for i, v := range obj.Vertices {
		if !identity {
			v = point(n.world, v)
		}
		m.Vertices[i] = b.swap(v)
	}

	normal := n.world
	if b.normals == NormalInverseTranspose {
		normal = n.world.NormalMatrix()
	}
	for i, v := range obj.Normals {
		switch {
		case b.normals == NormalInverseTranspose:
			v = normal.MulDirection(math.V3(v)).Normalize().Array()
		case !identity:
			v = point(normal, v)
		}
		m.Normals[i] = b.swap(v)
	}

	for _, bind := range n.materials {
		if bind.Index == 0 {
			m.MaterialRef = bind.Ref
			break
		}
	}
	return m
}

// point applies m to v with w = 1. There is no perspective divide.
func point(m math.Mat4, v [3]float32) [3]float32 {
	p := m.MulVec4(math.Vec4{v[0], v[1], v[2], 1})
	return [3]float32{p[0], p[1], p[2]}
}
