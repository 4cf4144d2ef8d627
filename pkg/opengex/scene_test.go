package opengex

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// unitTriangle is a GeometryObject named geometry1 with a unit triangle.
const unitTriangle = `
GeometryObject $geometry1
{
	Mesh (primitive = "triangles")
	{
		VertexArray (attrib = "position")
		{
			float[3]
			{
				{0.0, 0.0, 0.0},
				{1.0, 0.0, 0.0},
				{0.0, 1.0, 0.0}
			}
		}

		VertexArray (attrib = "normal")
		{
			float[3]
			{
				{0.0, 0.0, 1.0},
				{0.0, 1.0, 0.0},
				{1.0, 0.0, 0.0}
			}
		}

		IndexArray
		{
			unsigned_int32[3]
			{
				{0, 1, 2}
			}
		}
	}
}
`

func node(name, ref, body string) string {
	return "GeometryNode $" + name + "\n{\n\tName {string {\"" + name + "\"}}\n\tObjectRef {ref {$" + ref + "}}\n" + body + "}\n"
}

func transformBlock(values string) string {
	return "\tTransform\n\t{\n\t\tfloat[16]\n\t\t{\n\t\t\t{" + values + "}\n\t\t}\n\t}\n"
}

func diagsOf(s *Scene, kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range s.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func TestOpenTriangle(t *testing.T) {
	scene := Open(filepath.Join("testdata", "triangle.ogex"))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)

	m := scene.Models[0]
	assert.Equal(t, "Triangle", m.Name)
	assert.Equal(t, "triangles", m.Mesh)
	assert.Equal(t, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, m.Vertices)
	assert.Equal(t, [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}, m.Normals)
	assert.Equal(t, [][2]float32{{0, 0}, {1, 0}, {0, 1}}, m.TexCoords)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	assert.Equal(t, "matA", m.MaterialRef)
	assert.Empty(t, m.Animation.Tracks)

	// Distance is metadata only.
	assert.Equal(t, Metric{Distance: 2, Angle: 1, Time: 1, Up: "y"}, scene.Metric)

	assert.Equal(t, 3, scene.TotalVertexCount())
	assert.Equal(t, 3, scene.TotalIndexCount())
	assert.False(t, scene.HasAnimation())
}

func TestMaterials(t *testing.T) {
	scene := Open(filepath.Join("testdata", "triangle.ogex"))
	require.Len(t, scene.Materials, 2)

	a := scene.Materials[0]
	assert.Equal(t, "Stone", a.Name)
	assert.Equal(t, "matA", a.Ref)
	assert.Equal(t, [3]float32{0.5, 0.25, 1.0}, a.DiffuseColor)
	assert.Equal(t, [3]float32{0.1, 0.1, 0.1}, a.SpecularColor)
	assert.Equal(t, float32(32), a.SpecularPower)
	require.Len(t, a.Textures, 2)
	assert.Equal(t, AttribDiffuse, a.Textures[0].Attrib)
	assert.Equal(t, AttribSpecular, a.Textures[1].Attrib)
	assert.Equal(t, identityRaw, a.Textures[0].Transform)

	mat, ok := scene.MaterialByRef("$matB")
	require.True(t, ok)
	assert.Equal(t, "Metal", mat.Name)
	_, ok = scene.MaterialByRef("matC")
	assert.False(t, ok)
}

func TestDiffuseTexture(t *testing.T) {
	scene := Open(filepath.Join("testdata", "triangle.ogex"))

	tests := []struct {
		ref   string
		path  string
		found bool
	}{
		{"matA", "//textures/stone.tga", true},
		{"$matA", "//textures/stone.tga", true},
		{"matB", "", false}, // specular only
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			path, found := scene.DiffuseTexture(tt.ref)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.path, path)
		})
	}

	assert.Equal(t, []DiffuseTexture{
		{Path: "//textures/stone.tga", Color: [3]float32{0.5, 0.25, 1.0}},
		{Path: ""},
	}, scene.DiffuseTextures())
}

func TestDiffuseTextureLastWins(t *testing.T) {
	scene := Parse([]byte(`
Material $m
{
	Texture (attrib = "diffuse") {string {"first.png"}}
	Texture (attrib = "diffuse") {string {"second.png"}}
}
`))
	path, ok := scene.DiffuseTexture("m")
	assert.True(t, ok)
	assert.Equal(t, "second.png", path)
}

func TestDuplicateMaterialRefs(t *testing.T) {
	scene := Parse([]byte(`
Material $m
{
	Name {string {"First"}}
	Texture (attrib = "diffuse") {string {"first.png"}}
}
Material $m
{
	Name {string {"Second"}}
	Texture (attrib = "diffuse") {string {"second.png"}}
}
`))
	path, ok := scene.DiffuseTexture("$m")
	assert.True(t, ok)
	assert.Equal(t, "second.png", path)

	mat, ok := scene.MaterialByRef("$m")
	require.True(t, ok)
	assert.Equal(t, "First", mat.Name)
}

func TestIdentityRoundTrip(t *testing.T) {
	scene := Parse([]byte(node("n", "geometry1", "") + unitTriangle))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	assert.Equal(t, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, scene.Models[0].Vertices)
	assert.Equal(t, [][3]float32{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}, scene.Models[0].Normals)
}

func TestUpAxisSwap(t *testing.T) {
	body := transformBlock("1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 1, 2, 3, 1")
	doc := node("n", "geometry1", body) + unitTriangle

	base := Parse([]byte(`Metric (key = "up") {string {"y"}}` + "\n" + doc))
	require.Len(t, base.Models, 1)

	tests := []struct {
		up   string
		swap func([3]float32) [3]float32
	}{
		{"z", func(v [3]float32) [3]float32 { return [3]float32{v[0], v[2], v[1]} }},
		{"x", func(v [3]float32) [3]float32 { return [3]float32{v[1], v[0], v[2]} }},
		{"Z", func(v [3]float32) [3]float32 { return [3]float32{v[0], v[2], v[1]} }},
	}
	for _, tt := range tests {
		t.Run(tt.up, func(t *testing.T) {
			scene := Parse([]byte(`Metric (key = "up") {string {"` + tt.up + `"}}` + "\n" + doc))
			require.Len(t, scene.Models, 1)
			assert.Equal(t, strings.ToLower(tt.up), scene.Metric.Up)
			for i, v := range base.Models[0].Vertices {
				assert.Equal(t, tt.swap(v), scene.Models[0].Vertices[i])
			}
			for i, n := range base.Models[0].Normals {
				assert.Equal(t, tt.swap(n), scene.Models[0].Normals[i])
			}
		})
	}
}

func TestMetricIsMetadataOnly(t *testing.T) {
	plain := Parse([]byte(node("n", "geometry1", "") + unitTriangle))
	scaled := Parse([]byte(`Metric (key = "distance") {float {2.0}}` + "\n" + node("n", "geometry1", "") + unitTriangle))

	assert.Equal(t, float32(2), scaled.Metric.Distance)
	assert.Equal(t, plain.Vertices(), scaled.Vertices())
}

func TestMissingReference(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	scene := Parse([]byte(node("Lonely", "Missing", "")+unitTriangle), WithLogger(zap.New(core)))

	assert.Empty(t, scene.Models)
	require.Len(t, scene.Diagnostics, 1)
	d := scene.Diagnostics[0]
	assert.Equal(t, DiagUnresolvedReference, d.Kind)
	assert.Equal(t, "Lonely", d.Node)
	assert.Contains(t, d.Error(), "Lonely")

	err := scene.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedReference))
	assert.False(t, errors.Is(err, ErrMalformedLine))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "UnresolvedReference", logs.All()[0].ContextMap()["kind"])
}

func TestModelCountEqualsResolvedNodes(t *testing.T) {
	doc := node("a", "geometry1", "") +
		node("b", "nothing", "") +
		node("c", "geometry1", "") +
		"Node $group\n{\n}\n" +
		unitTriangle
	scene := Parse([]byte(doc))

	require.Len(t, scene.Models, 2)
	assert.Equal(t, "a", scene.Models[0].Name)
	assert.Equal(t, "c", scene.Models[1].Name)
	unresolved := diagsOf(scene, DiagUnresolvedReference)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "b", unresolved[0].Node)

	m, ok := scene.ModelByName("c")
	require.True(t, ok)
	assert.Equal(t, "c", m.Name)
	_, ok = scene.ModelByName("b")
	assert.False(t, ok)
}

func TestNodeWithoutObjectRef(t *testing.T) {
	scene := Parse([]byte("GeometryNode $empty\n{\n}\n" + unitTriangle))
	assert.Empty(t, scene.Models)
	unresolved := diagsOf(scene, DiagUnresolvedReference)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "node has no object reference", unresolved[0].Message)
}

func TestAnimation(t *testing.T) {
	scene := Open(filepath.Join("testdata", "animated.ogex"))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	m := scene.Models[0]

	// Translated by +5 on x, then z-up swap.
	assert.Equal(t, [][3]float32{{5, 2, 1}, {8, 5, 4}}, m.Vertices)
	assert.Equal(t, []uint32{0, 1}, m.Indices)
	assert.Equal(t, "material1", m.MaterialRef)
	assert.True(t, scene.HasAnimation())

	anim := m.Animation
	assert.Equal(t, float32(0), anim.Begin)
	assert.Equal(t, float32(2.5), anim.End)
	require.Len(t, anim.Tracks, 2)

	pos := anim.Tracks[0]
	assert.Equal(t, TargetXPos, pos.Target)
	assert.Equal(t, "xpos", pos.TargetRef)
	assert.Equal(t, CurveLinear, pos.Time.Type)
	assert.Equal(t, []Key{
		{Floats: []float32{0}, Kind: KeySingle},
		{Floats: []float32{1}, Kind: KeySingle},
	}, pos.Time.Keys)
	assert.Equal(t, CurveBezier, pos.Value.Type)
	assert.Equal(t, []Key{
		{Floats: []float32{0.25}, Kind: KeyPlusControl},
		{Floats: []float32{0.75}, Kind: KeyMinusControl},
	}, pos.Value.Keys)

	xf := anim.Tracks[1]
	assert.Equal(t, TargetTransform, xf.Target)
	assert.Equal(t, CurveLinear, xf.Time.Type)
	require.Len(t, xf.Time.Keys, 1)
	assert.Equal(t, []float32{0, 2.5}, xf.Time.Keys[0].Floats)
	require.Len(t, xf.Value.Keys, 1)
	assert.Equal(t, KeySixteen, xf.Value.Keys[0].Kind)
	assert.Equal(t, identityRaw[:], xf.Value.Keys[0].Floats)
}

func TestAnimationScenario(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation
	{
		Track (target = %ypos)
		{
			Time (curve = "linear")
			{
				Key {float {0.0}}
				Key {float {1.0}}
			}
			Value (curve = "bezier")
			{
				Key (kind = "+control") {float {0.1}}
				Key (kind = "-control") {float {0.2}}
			}
		}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	require.Len(t, scene.Models, 1)
	require.Len(t, scene.Models[0].Animation.Tracks, 1)
	tr := scene.Models[0].Animation.Tracks[0]

	require.Len(t, tr.Time.Keys, 2)
	assert.Equal(t, KeySingle, tr.Time.Keys[0].Kind)
	assert.Equal(t, KeySingle, tr.Time.Keys[1].Kind)
	assert.Equal(t, []float32{0}, tr.Time.Keys[0].Floats)
	assert.Equal(t, []float32{1}, tr.Time.Keys[1].Floats)

	require.Len(t, tr.Value.Keys, 2)
	assert.Equal(t, KeyPlusControl, tr.Value.Keys[0].Kind)
	assert.Equal(t, KeyMinusControl, tr.Value.Keys[1].Kind)
}

func TestKeyKindFromArrayType(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation
	{
		Track (target = %transform)
		{
			Value (curve = "spline")
			{
				Key {float[2] {{1, 2}}}
				Key {float[3] {{1, 2, 3}}}
				Key {float[4] {{1, 2, 3, 4}}}
			}
		}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	require.Len(t, scene.Models, 1)
	v := scene.Models[0].Animation.Tracks[0].Value
	assert.Equal(t, CurveUnknown, v.Type)
	require.Len(t, v.Keys, 3)
	assert.Equal(t, KeyDouble, v.Keys[0].Kind)
	assert.Equal(t, KeyTriple, v.Keys[1].Kind)
	assert.Equal(t, KeyQuad, v.Keys[2].Kind)
	assert.Equal(t, []float32{1, 2, 3, 4}, v.Keys[2].Floats)
}

func TestSecondAnimationReplacesFirst(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation (begin = 1.0)
	{
	}
	Animation (begin = 4.0)
	{
		Track (target = %zpos)
		{
		}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	require.Len(t, scene.Models, 1)
	anim := scene.Models[0].Animation
	assert.Equal(t, float32(4), anim.Begin)
	require.Len(t, anim.Tracks, 1)
	assert.Equal(t, TargetZPos, anim.Tracks[0].Target)
}

func TestNestedNodes(t *testing.T) {
	inner := node("child", "geometry1", transformBlock("1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 2, 0, 1"))
	doc := "Node $parent\n{\n" + transformBlock("1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 1, 0, 0, 1") + inner + "}\n" + unitTriangle

	scene := Parse([]byte(doc))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	assert.Equal(t, "child", scene.Models[0].Name)
	assert.Equal(t, [3]float32{1, 2, 0}, scene.Models[0].Vertices[0])
	assert.Equal(t, [3]float32{2, 2, 0}, scene.Models[0].Vertices[1])
}

func TestNestedGeometryNodes(t *testing.T) {
	inner := node("child", "geometry1", transformBlock("2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1"))
	outer := node("parent", "geometry1", transformBlock("1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 10, 0, 0, 1")+inner)

	scene := Parse([]byte(outer + unitTriangle))
	require.Len(t, scene.Models, 2)
	assert.Equal(t, [3]float32{11, 0, 0}, scene.Models[0].Vertices[1])
	// Child: parent translation applied after child scale.
	assert.Equal(t, [3]float32{12, 0, 0}, scene.Models[1].Vertices[1])
}

func TestNormalModes(t *testing.T) {
	// Scale x by 2, translate x by 5.
	body := transformBlock("2, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 0, 0, 1")
	doc := []byte(node("n", "geometry1", body) + unitTriangle)

	affine := Parse(doc)
	require.Len(t, affine.Models, 1)
	// Normals go through the full affine transform by default.
	assert.Equal(t, [][3]float32{{5, 0, 1}, {5, 1, 0}, {7, 0, 0}}, affine.Models[0].Normals)

	it := Parse(doc, WithNormalMode(NormalInverseTranspose))
	require.Len(t, it.Models, 1)
	want := [][3]float32{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	for i, n := range it.Models[0].Normals {
		for j := range n {
			assert.InDelta(t, want[i][j], n[j], 1e-6)
		}
	}
	// Positions are the same in both modes.
	assert.Equal(t, affine.Vertices(), it.Vertices())
}

func TestIdentityNodeNormals(t *testing.T) {
	long := strings.Replace(unitTriangle, "{0.0, 0.0, 1.0},", "{0.0, 0.0, 2.0},", 1)
	doc := []byte(node("n", "geometry1", "") + long)

	affine := Parse(doc)
	require.Len(t, affine.Models, 1)
	assert.Equal(t, [3]float32{0, 0, 2}, affine.Models[0].Normals[0])
	assert.Equal(t, [3]float32{1, 0, 0}, affine.Models[0].Vertices[1])

	it := Parse(doc, WithNormalMode(NormalInverseTranspose))
	require.Len(t, it.Models, 1)
	assert.Equal(t, [3]float32{0, 0, 1}, it.Models[0].Normals[0])
}

func TestParseNormalMode(t *testing.T) {
	m, err := ParseNormalMode("inverse-transpose")
	require.NoError(t, err)
	assert.Equal(t, NormalInverseTranspose, m)
	assert.Equal(t, "inverse-transpose", m.String())

	m, err = ParseNormalMode("")
	require.NoError(t, err)
	assert.Equal(t, NormalAffine, m)

	_, err = ParseNormalMode("bogus")
	assert.Error(t, err)
}

func TestInlineTransform(t *testing.T) {
	body := "\tTransform {float[16] {{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 3, 1}}}\n"
	scene := Parse([]byte(node("n", "geometry1", body) + unitTriangle))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	assert.Equal(t, [3]float32{1, 0, 3}, scene.Models[0].Vertices[1])
}

func TestShortTransform(t *testing.T) {
	body := transformBlock("1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0")
	scene := Parse([]byte(node("n", "geometry1", body) + unitTriangle))

	malformed := diagsOf(scene, DiagMalformedLine)
	require.Len(t, malformed, 1)
	assert.Equal(t, "Transform", malformed[0].Keyword)
	assert.Contains(t, malformed[0].Message, "12 of 16")
	// The model is still produced with the partial matrix.
	require.Len(t, scene.Models, 1)
}

func TestTextureTransform(t *testing.T) {
	scene := Parse([]byte(`
Material $m
{
	Texture (attrib = "diffuse")
	{
		string {"a.png"}
		Transform
		{
			float[16]
			{
				{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1, 0, 0.5, 0, 0, 1}
			}
		}
	}
}
`))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Materials, 1)
	require.Len(t, scene.Materials[0].Textures, 1)
	tex := scene.Materials[0].Textures[0]
	assert.Equal(t, "a.png", tex.Path)
	assert.Equal(t, [16]float32{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 1, 0, 0.5, 0, 0, 1}, tex.Transform)
}

func TestIncompleteTuple(t *testing.T) {
	scene := Parse([]byte(node("n", "g", "") + `
GeometryObject $g
{
	Mesh
	{
		VertexArray (attrib = "position")
		{
			float[3]
			{
				{0.0, 1.0, 2.0}, {3.0, 4.0,
				5.0}
			}
		}
	}
}
`))
	require.Len(t, scene.Models, 1)
	assert.Equal(t, "triangles", scene.Models[0].Mesh)
	// Tuples do not continue across lines.
	assert.Equal(t, [][3]float32{{0, 1, 2}}, scene.Models[0].Vertices)

	malformed := diagsOf(scene, DiagMalformedLine)
	require.Len(t, malformed, 2)
	assert.Equal(t, "VertexArray", malformed[0].Keyword)
	assert.Contains(t, malformed[0].Message, "incomplete tuple")
	assert.Equal(t, 15, malformed[0].Line)
	assert.Equal(t, 16, malformed[1].Line)
}

func TestMalformedMetric(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	scene := Parse([]byte(`Metric {float {2.0}}
Metric (key = "distance") {}
Metric (key = "up") {float {1.0}}
`), WithLogger(zap.New(core)))

	malformed := diagsOf(scene, DiagMalformedLine)
	require.Len(t, malformed, 3)
	for i, d := range malformed {
		assert.Equal(t, "Metric", d.Keyword)
		assert.Equal(t, i+1, d.Line)
		assert.True(t, errors.Is(d, ErrMalformedLine))
	}
	assert.Equal(t, DefaultMetric(), scene.Metric)
	assert.Equal(t, 3, logs.FilterMessage("opengex diagnostic").Len())
}

func TestMaterialRefIndex(t *testing.T) {
	body := "\tMaterialRef (index = 1) {ref {$second}}\n\tMaterialRef (index = 0) {ref {$first}}\n"
	scene := Parse([]byte(node("n", "geometry1", body) + unitTriangle))
	require.Len(t, scene.Models, 1)
	assert.Equal(t, "first", scene.Models[0].MaterialRef)

	body = "\tMaterialRef (index = 2) {ref {$only}}\n"
	scene = Parse([]byte(node("n", "geometry1", body) + unitTriangle))
	require.Len(t, scene.Models, 1)
	assert.Empty(t, scene.Models[0].MaterialRef)
}

func TestDuplicateObjectFirstWins(t *testing.T) {
	second := strings.Replace(unitTriangle, "{1.0, 0.0, 0.0}", "{9.0, 9.0, 9.0}", 1)
	scene := Parse([]byte(node("n", "geometry1", "") + unitTriangle + second))
	require.Len(t, scene.Models, 1)
	assert.Equal(t, [3]float32{1, 0, 0}, scene.Models[0].Vertices[1])
}

func TestSkipsLODAndMorph(t *testing.T) {
	scene := Parse([]byte(node("n", "g", "") + `
GeometryObject $g
{
	Mesh (lod = 0, primitive = "triangle_strip")
	{
		VertexArray (attrib = "position") {float[3] {{1, 1, 1}}}
		VertexArray (attrib = "position", morph = 1) {float[3] {{2, 2, 2}}}
	}
	Mesh (lod = 1)
	{
		VertexArray (attrib = "position") {float[3] {{3, 3, 3}}}
	}
}
`))
	require.Len(t, scene.Models, 1)
	assert.Equal(t, "triangle_strip", scene.Models[0].Mesh)
	assert.Equal(t, [][3]float32{{1, 1, 1}}, scene.Models[0].Vertices)
}

func TestTexCoordsSkipsEmpty(t *testing.T) {
	withUV := strings.Replace(unitTriangle, "$geometry1", "$uv", 1)
	withUV = strings.Replace(withUV, "\t\tIndexArray", "\t\tVertexArray (attrib = \"texcoord\") {float[2] {{0, 0}, {1, 0}, {0, 1}}}\n\t\tIndexArray", 1)
	scene := Parse([]byte(node("plain", "geometry1", "") + node("mapped", "uv", "") + unitTriangle + withUV))

	require.Len(t, scene.Models, 2)
	assert.Len(t, scene.Vertices(), 2)
	assert.Len(t, scene.Normals(), 2)
	assert.Len(t, scene.Indices(), 2)
	require.Len(t, scene.TexCoords(), 1)
	assert.Equal(t, [][2]float32{{0, 0}, {1, 0}, {0, 1}}, scene.TexCoords()[0])
}

func TestHexFloatsAndComments(t *testing.T) {
	scene := Parse([]byte(node("n", "g", "") + `
GeometryObject $g // hex encoded
{
	Mesh
	{
		VertexArray (attrib = "position")
		{
			float[3] /* one vertex */
			{
				{0x3F800000, 0x40000000, 0x00000000}	// 1, 2, 0
			}
		}
	}
}
`))
	require.Len(t, scene.Models, 1)
	assert.Equal(t, [][3]float32{{1, 2, 0}}, scene.Models[0].Vertices)
}

func TestKeyBodyOnFollowingLines(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation
	{
		Track (target = %transform)
		{
			Value
			{
				Key {float[3] {
					{1, 2, 3}
				}}
				Key (kind = "+control") {float {
					0.5
				}}
			}
		}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	v := scene.Models[0].Animation.Tracks[0].Value
	assert.Equal(t, []Key{
		{Floats: []float32{1, 2, 3}, Kind: KeyTriple},
		{Floats: []float32{0.5}, Kind: KeyPlusControl},
	}, v.Keys)
}

func TestNestedStructuresOnOneLine(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation
	{
		Track (target = %xpos) {Time {Key {float {0}} Key {float {1}}} Value {Key {float {3}}}}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	require.NoError(t, scene.Err())
	require.Len(t, scene.Models, 1)
	tracks := scene.Models[0].Animation.Tracks
	require.Len(t, tracks, 1)
	assert.Equal(t, TargetXPos, tracks[0].Target)
	assert.Equal(t, []Key{
		{Floats: []float32{0}, Kind: KeySingle},
		{Floats: []float32{1}, Kind: KeySingle},
	}, tracks[0].Time.Keys)
	assert.Equal(t, []Key{{Floats: []float32{3}, Kind: KeySingle}}, tracks[0].Value.Keys)
}

func TestStrayStructureHeader(t *testing.T) {
	doc := node("n", "geometry1", `
	Animation
	{
		Track (target = %xpos)
		{
			Time {Key {float {0}}, Key {float {1}}}
		}
	}
`) + unitTriangle

	scene := Parse([]byte(doc))
	malformed := diagsOf(scene, DiagMalformedLine)
	require.Len(t, malformed, 1)
	assert.Equal(t, 10, malformed[0].Line)
	assert.Equal(t, "Key", malformed[0].Keyword)
	require.Len(t, scene.Models, 1)
	assert.Len(t, scene.Models[0].Animation.Tracks[0].Time.Keys, 1)
}

func TestOverlongLineSkipped(t *testing.T) {
	diags := &diagnostics{log: zap.NewNop()}
	s := newScanner(zap.NewNop(), diags)
	s.maxLine = 100000

	// The first line spans several reader buffers but fits the limit.
	doc := strings.Repeat(" ", 70000) + `Metric (key = "up") {string {"z"}}` + "\n" +
		node("n", "geometry1", "") +
		"// " + strings.Repeat("x", 150000) + "\n" +
		unitTriangle
	require.NoError(t, s.scan(strings.NewReader(doc)))

	assert.Equal(t, "z", s.metric.Up)
	require.Len(t, s.nodes, 1)
	require.Len(t, s.objects, 1)
	assert.Len(t, s.objects[0].Vertices, 3)

	require.Len(t, diags.list, 1)
	assert.Equal(t, DiagMalformedLine, diags.list[0].Kind)
	assert.Equal(t, 7, diags.list[0].Line)
	assert.Contains(t, diags.list[0].Message, "100000")
}

func TestByteOrderMark(t *testing.T) {
	doc := "\xEF\xBB\xBF" + `Metric (key = "up") {string {"z"}}` + "\n" + node("n", "geometry1", "") + unitTriangle
	scene := Parse([]byte(doc))
	require.NoError(t, scene.Err())
	assert.Equal(t, "z", scene.Metric.Up)
	require.Len(t, scene.Models, 1)
}

func TestUnbalancedBrace(t *testing.T) {
	scene := Parse([]byte("}\n" + node("n", "geometry1", "") + unitTriangle))
	malformed := diagsOf(scene, DiagMalformedLine)
	require.Len(t, malformed, 1)
	assert.Equal(t, 1, malformed[0].Line)
	require.Len(t, scene.Models, 1)
}

func TestSourceNotFound(t *testing.T) {
	scene := Open(filepath.Join("testdata", "does-not-exist.ogex"))

	assert.Empty(t, scene.Models)
	assert.Empty(t, scene.Materials)
	assert.Equal(t, DefaultMetric(), scene.Metric)
	require.Len(t, scene.Diagnostics, 1)
	assert.Equal(t, DiagSourceNotFound, scene.Diagnostics[0].Kind)

	err := scene.Err()
	assert.True(t, errors.Is(err, ErrSourceNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "does-not-exist.ogex")
}

func TestDecodeReadError(t *testing.T) {
	boom := errors.New("boom")
	scene := Decode(iotest.ErrReader(boom))

	assert.Empty(t, scene.Models)
	require.Len(t, scene.Diagnostics, 1)
	assert.True(t, errors.Is(scene.Err(), ErrSourceNotFound))
	assert.True(t, errors.Is(scene.Err(), boom))
}

func TestErrCombinesDiagnostics(t *testing.T) {
	scene := Parse([]byte("Metric {}\n" + node("n", "Missing", "")))
	err := scene.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedLine))
	assert.True(t, errors.Is(err, ErrUnresolvedReference))

	assert.NoError(t, Parse(nil).Err())
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "diffuse", AttribDiffuse.String())
	assert.Equal(t, "bezier", CurveBezier.String())
	assert.Equal(t, "+control", KeyPlusControl.String())
	assert.Equal(t, "zrot", TargetZRot.String())
	assert.Equal(t, "unknown", TargetUnknown.String())
	assert.Equal(t, "MalformedLine", DiagMalformedLine.String())
	assert.Equal(t, "ArrayType", TokenArrayType.String())
}
