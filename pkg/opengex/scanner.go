package opengex

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-ogex/pkg/math"
)

// maxLineSize bounds a single source line. Exporters often write a whole
// vertex array on one line.
const maxLineSize = 16 * 1024 * 1024

// geometryNode is the scan-time record for GeometryNode and plain Node
// structures. Plain nodes only contribute their transform to children.
type geometryNode struct {
	name      string
	raw       [16]float32
	world     math.Mat4
	objectRef string
	materials []MaterialBinding
	animation *Animation
	parent    *geometryNode
	geometry  bool
	line      int
}

// vertexStream selects the object buffer a VertexArray feeds.
type vertexStream int

const (
	streamIgnored vertexStream = iota
	streamPosition
	streamNormal
	streamTexcoord
)

type vertexArray struct {
	obj    *GeometryObject
	stream vertexStream
}

// arrayRegion is the payload of a primitive data header such as float[3].
// consumer is the structure the numbers feed, resolved when the header opens.
type arrayRegion struct {
	typ      arrayType
	consumer *region
}

// textureRef addresses a texture by position so later appends to the
// material's slice cannot leave it dangling.
type textureRef struct {
	mat   *Material
	index int
}

func (r textureRef) get() *Texture { return &r.mat.Textures[r.index] }

type trackRef struct {
	anim  *Animation
	index int
}

func (r trackRef) get() *Track { return &r.anim.Tracks[r.index] }

type curveRef struct {
	track trackRef
	value bool
}

func (r curveRef) get() *Curve {
	if r.value {
		return &r.track.get().Value
	}
	return &r.track.get().Time
}

type keyRef struct {
	curve curveRef
	index int
}

func (r keyRef) get() *Key { return &r.curve.get().Keys[r.index] }

// keyBody is the payload of a Key whose data follows on later lines.
type keyBody struct {
	keys    []keyRef
	kindSet bool
}

type lineHandler func(s *scanner, l line)

var handlers = map[string]lineHandler{
	"Metric":         (*scanner).metricLine,
	"GeometryNode":   func(s *scanner, l line) { s.nodeLine(l, true) },
	"Node":           func(s *scanner, l line) { s.nodeLine(l, false) },
	"BoneNode":       func(s *scanner, l line) { s.nodeLine(l, false) },
	"CameraNode":     func(s *scanner, l line) { s.nodeLine(l, false) },
	"LightNode":      func(s *scanner, l line) { s.nodeLine(l, false) },
	"Name":           (*scanner).nameLine,
	"ObjectRef":      (*scanner).objectRefLine,
	"MaterialRef":    (*scanner).materialRefLine,
	"Transform":      (*scanner).transformLine,
	"GeometryObject": (*scanner).objectLine,
	"Mesh":           (*scanner).meshLine,
	"VertexArray":    (*scanner).vertexArrayLine,
	"IndexArray":     (*scanner).indexArrayLine,
	"Material":       (*scanner).materialLine,
	"Texture":        (*scanner).textureLine,
	"string":         (*scanner).stringLine,
	"Color":          (*scanner).colorLine,
	"Param":          (*scanner).paramLine,
	"Animation":      (*scanner).animationLine,
	"Track":          (*scanner).trackLine,
	"Time":           func(s *scanner, l line) { s.curveLine(l, false) },
	"Value":          func(s *scanner, l line) { s.curveLine(l, true) },
	"Key":            (*scanner).keyLine,
}

// scanner is the single-pass state machine that turns lines into scene
// builders.
type scanner struct {
	depth   int
	lineNum int
	maxLine int
	regions regionStack

	// openTail is set by a handler whose data header may follow later on
	// the same line.
	openTail bool

	metric    Metric
	nodes     []*geometryNode
	objects   []*GeometryObject
	materials []*Material

	diags *diagnostics
	log   *zap.Logger
}

func newScanner(log *zap.Logger, diags *diagnostics) *scanner {
	return &scanner{
		metric:  DefaultMetric(),
		maxLine: maxLineSize,
		diags:   diags,
		log:     log,
	}
}

// scan consumes every line of r. A line longer than maxLine is skipped
// with a diagnostic; only a read error stops the scan.
func (s *scanner) scan(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	num, tooLong := 0, false
	for {
		chunk, more, err := br.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if !tooLong && len(buf)+len(chunk) > s.maxLine {
			tooLong, buf = true, buf[:0]
		}
		if !tooLong {
			buf = append(buf, chunk...)
		}
		if more {
			continue
		}

		num++
		if tooLong {
			s.diags.add(Diagnostic{
				Kind:    DiagMalformedLine,
				Line:    num,
				Message: "line exceeds " + strconv.Itoa(s.maxLine) + " bytes",
			})
			s.lineNum = num
		} else {
			s.scanLine(num, string(buf))
		}
		buf, tooLong = buf[:0], false
	}
	if s.regions.len() > 0 {
		s.log.Debug("input ended with open structures",
			zap.Int("open", s.regions.len()),
			zap.Int("depth", s.depth))
	}
	return nil
}

// scanLine applies leading braces, dispatches the structure that starts
// the line, then walks the rest of the line applying braces in order and
// dispatching structures nested on the same line. Handlers therefore see
// the depth measured before the structure's own opening brace.
func (s *scanner) scanLine(num int, text string) {
	s.lineNum = num
	toks := Tokenize(text)

	i := 0
	for i < len(toks) && toks[i].isBrace() {
		s.brace(toks[i])
		i++
	}
	if i == len(toks) {
		return
	}
	toks = toks[i:]

	tail := false
	if toks[0].Type == TokenNumber {
		if arr := s.regions.innermost(regionArray); arr != nil {
			s.route(arr, line{num: num, toks: toks}, 0)
		}
	} else {
		tail = s.dispatch(line{num: num, toks: toks[:structureEnd(toks, 0)]})
	}

	for j := 1; j < len(toks); j++ {
		t := toks[j]
		if t.isBrace() {
			s.brace(t)
			continue
		}
		if t.Type != TokenIdent && t.Type != TokenArrayType {
			continue
		}
		sub := line{num: num, toks: toks[j:structureEnd(toks, j)]}
		switch {
		case isStructure(t.Lit):
			if !toks[j-1].isBrace() {
				s.diags.malformed(sub, t.Lit, "structure header does not start a structure body")
				continue
			}
			tail = s.dispatch(sub)
		case tail:
			// Transform {float[16] {{...}}} written on one line.
			if at, ok := parseArrayType(t.Lit); ok {
				s.arrayHeader(sub, at)
				tail = false
			}
		}
	}
}

// dispatch runs the handler for the structure that starts l. It reports
// whether a data header later on the line feeds that structure.
func (s *scanner) dispatch(l line) bool {
	head := l.toks[0]
	if head.Type != TokenIdent && head.Type != TokenArrayType {
		return false
	}
	if h, ok := handlers[head.Lit]; ok {
		s.openTail = false
		h(s, l)
		return containers[head.Lit] || s.openTail
	}
	if at, ok := parseArrayType(head.Lit); ok {
		s.arrayHeader(l, at)
		return false
	}
	s.log.Debug("skipping unknown structure", zap.Int("line", l.num), zap.String("identifier", head.Lit))
	return false
}

// isStructure reports whether ident names a handled structure, as opposed
// to a primitive data type or property key.
func isStructure(ident string) bool {
	_, ok := handlers[ident]
	return ok && ident != "" && ident[0] >= 'A' && ident[0] <= 'Z'
}

// structureEnd returns the index just past the brace that closes the
// structure starting at toks[from], or len(toks) when it stays open.
func structureEnd(toks []Token, from int) int {
	depth := 0
	for j := from; j < len(toks); j++ {
		switch toks[j].Type {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			depth--
			if depth == 0 {
				return j + 1
			}
			if depth < 0 {
				return j
			}
		}
	}
	return len(toks)
}

// containers are structures whose data array may follow the header on the
// same line.
var containers = map[string]bool{
	"Transform":   true,
	"VertexArray": true,
	"IndexArray":  true,
}

func (s *scanner) brace(t Token) {
	if t.Type == TokenLBrace {
		s.depth++
		return
	}
	if s.depth == 0 {
		s.diags.add(Diagnostic{Kind: DiagMalformedLine, Line: s.lineNum, Keyword: "}", Message: "unbalanced closing brace"})
		return
	}
	s.depth--
	for _, r := range s.regions.close(s.depth) {
		s.closed(r)
	}
}

// closed runs when a region ends.
func (s *scanner) closed(r *region) {
	if r.kind != regionArray {
		return
	}
	arr := r.payload.(*arrayRegion)
	if arr.consumer == nil || arr.consumer.kind != regionTransform || arr.consumer.payload == nil {
		return
	}
	if r.index > 0 && r.index < 16 {
		s.diags.add(Diagnostic{
			Kind:    DiagMalformedLine,
			Line:    s.lineNum,
			Keyword: "Transform",
			Message: "transform ended after " + strconv.Itoa(r.index) + " of 16 values",
		})
	}
}

func (s *scanner) currentNode() *geometryNode {
	if r := s.regions.innermost(regionNode); r != nil {
		return r.payload.(*geometryNode)
	}
	return nil
}

func (s *scanner) currentMaterial() *Material {
	if r := s.regions.innermost(regionMaterial); r != nil {
		return r.payload.(*Material)
	}
	return nil
}

// meshTarget returns the object that vertex and index arrays should fill,
// or nil when they belong to a skipped LOD or no object is open.
func (s *scanner) meshTarget() *GeometryObject {
	if r := s.regions.innermostOf(regionMesh, regionObject); r != nil {
		obj, _ := r.payload.(*GeometryObject)
		return obj
	}
	return nil
}

func (s *scanner) metricLine(l line) {
	props, next := l.properties(1)
	key, ok := stringProp(props, "key")
	if !ok {
		s.diags.malformed(l, "Metric", "missing key property")
		return
	}

	switch key {
	case "distance", "angle", "time":
		vals := l.floats(next)
		if len(vals) == 0 {
			s.diags.malformed(l, "Metric", "missing float value for %q", key)
			return
		}
		switch key {
		case "distance":
			s.metric.Distance = vals[0]
		case "angle":
			s.metric.Angle = vals[0]
		case "time":
			s.metric.Time = vals[0]
		}
	case "up", "forward":
		str, ok := l.first(TokenString, next)
		if !ok {
			s.diags.malformed(l, "Metric", "missing string value for %q", key)
			return
		}
		axis := strings.ToLower(str.Lit)
		if key == "up" {
			s.metric.Up = axis
		} else {
			s.metric.Forward = axis
		}
	default:
		s.log.Debug("ignoring metric", zap.String("key", key))
	}
}

func (s *scanner) nodeLine(l line, geometry bool) {
	name, _ := l.name()
	n := &geometryNode{
		name:     name,
		raw:      identityRaw,
		geometry: geometry,
		line:     l.num,
	}
	r := s.regions.open(regionNode, s.depth, n)
	if parent := s.regions.below(r, regionNode); parent != nil {
		n.parent = parent.payload.(*geometryNode)
	}
	s.nodes = append(s.nodes, n)
}

func (s *scanner) nameLine(l line) {
	str, ok := l.first(TokenString, 1)
	if !ok {
		s.diags.malformed(l, "Name", "missing string value")
		return
	}
	r := s.regions.innermostOf(regionNode, regionMaterial)
	if r == nil {
		return
	}
	switch owner := r.payload.(type) {
	case *geometryNode:
		owner.name = str.Lit
	case *Material:
		owner.Name = str.Lit
	}
}

func (s *scanner) objectRefLine(l line) {
	ref, ok := l.first(TokenName, 1)
	if !ok {
		s.diags.malformed(l, "ObjectRef", "missing reference")
		return
	}
	if n := s.currentNode(); n != nil {
		n.objectRef = bareName(ref.Lit)
	}
}

func (s *scanner) materialRefLine(l line) {
	props, next := l.properties(1)
	var index uint32
	if t, ok := props["index"]; ok {
		v, ok := parseUint(t.Lit)
		if !ok {
			s.diags.malformed(l, "MaterialRef", "index %q is not an unsigned integer", t.Lit)
			return
		}
		index = v
	}
	ref, ok := l.first(TokenName, next)
	if !ok {
		s.diags.malformed(l, "MaterialRef", "missing reference")
		return
	}
	if n := s.currentNode(); n != nil {
		n.materials = append(n.materials, MaterialBinding{Index: index, Ref: bareName(ref.Lit)})
	}
}

// transformLine opens a Transform whose float[16] data lands in the raw
// matrix of the innermost node or texture.
func (s *scanner) transformLine(l line) {
	var target *[16]float32
	if owner := s.regions.innermostOf(regionNode, regionTexture); owner != nil {
		switch p := owner.payload.(type) {
		case *geometryNode:
			target = &p.raw
		case textureRef:
			target = &p.get().Transform
		}
	}
	if target == nil {
		s.regions.open(regionTransform, s.depth, nil)
		return
	}
	s.regions.open(regionTransform, s.depth, target)
}

// arrayHeader opens a primitive data structure. Data written on the same
// line is consumed immediately.
func (s *scanner) arrayHeader(l line, at arrayType) {
	arr := &arrayRegion{typ: at}
	r := s.regions.open(regionArray, s.depth, arr)
	arr.consumer = s.regions.below(r, regionTransform, regionVertexArray, regionIndexArray, regionKey)
	if _, ok := l.first(TokenNumber, 1); ok {
		s.route(r, l, 1)
	}
}

func (s *scanner) objectLine(l line) {
	name, ok := l.name()
	if !ok {
		s.diags.malformed(l, "GeometryObject", "missing object name")
		s.regions.open(regionObject, s.depth, (*GeometryObject)(nil))
		return
	}
	for _, existing := range s.objects {
		if existing.Name == name {
			s.log.Warn("duplicate geometry object name, first definition wins",
				zap.String("name", name), zap.Int("line", l.num))
			break
		}
	}
	obj := &GeometryObject{Name: name}
	s.objects = append(s.objects, obj)
	s.regions.open(regionObject, s.depth, obj)
}

func (s *scanner) meshLine(l line) {
	obj := s.meshTarget()
	if obj == nil {
		return
	}
	props, _ := l.properties(1)
	if t, ok := props["lod"]; ok {
		if lod, ok := parseUint(t.Lit); ok && lod != 0 {
			s.regions.open(regionMesh, s.depth, (*GeometryObject)(nil))
			return
		}
	}
	if prim, ok := stringProp(props, "primitive"); ok {
		obj.Mesh = prim
	} else if obj.Mesh == "" {
		obj.Mesh = "triangles"
	}
	s.regions.open(regionMesh, s.depth, obj)
}

func (s *scanner) vertexArrayLine(l line) {
	obj := s.meshTarget()
	if obj == nil {
		return
	}
	va := vertexArray{obj: obj}
	props, _ := l.properties(1)
	attrib, ok := stringProp(props, "attrib")
	if !ok {
		s.diags.malformed(l, "VertexArray", "missing attrib property")
		s.regions.open(regionVertexArray, s.depth, va)
		return
	}
	if t, ok := props["morph"]; ok {
		if morph, ok := parseUint(t.Lit); ok && morph != 0 {
			s.regions.open(regionVertexArray, s.depth, va)
			return
		}
	}
	switch attrib {
	case "position":
		va.stream = streamPosition
	case "normal":
		va.stream = streamNormal
	case "texcoord":
		va.stream = streamTexcoord
	}
	s.regions.open(regionVertexArray, s.depth, va)
}

func (s *scanner) indexArrayLine(l line) {
	if obj := s.meshTarget(); obj != nil {
		s.regions.open(regionIndexArray, s.depth, obj)
	}
}

func (s *scanner) materialLine(l line) {
	ref, _ := l.name()
	m := &Material{Ref: ref}
	s.materials = append(s.materials, m)
	s.regions.open(regionMaterial, s.depth, m)
}

func (s *scanner) textureLine(l line) {
	mat := s.currentMaterial()
	if mat == nil {
		return
	}
	props, next := l.properties(1)
	attrib, ok := stringProp(props, "attrib")
	if !ok {
		s.diags.malformed(l, "Texture", "missing attrib property")
		return
	}
	mat.Textures = append(mat.Textures, Texture{Attrib: parseAttrib(attrib), Transform: identityRaw})
	ref := textureRef{mat: mat, index: len(mat.Textures) - 1}
	if str, ok := l.first(TokenString, next); ok {
		ref.get().Path = str.Lit
	}
	s.regions.open(regionTexture, s.depth, ref)
}

// stringLine handles the string {"path"} body of a Texture.
func (s *scanner) stringLine(l line) {
	r := s.regions.innermost(regionTexture)
	if r == nil {
		return
	}
	str, ok := l.first(TokenString, 1)
	if !ok {
		s.diags.malformed(l, "string", "missing string literal")
		return
	}
	r.payload.(textureRef).get().Path = str.Lit
}

// colorLine reads an inline colour such as
// Color (attrib = "diffuse") {float[3] {{0.8, 0.8, 0.8}}}.
func (s *scanner) colorLine(l line) {
	mat := s.currentMaterial()
	if mat == nil {
		return
	}
	props, next := l.properties(1)
	attrib, ok := stringProp(props, "attrib")
	if !ok {
		s.diags.malformed(l, "Color", "missing attrib property")
		return
	}
	at, ok := l.dataType(next)
	if !ok || !at.isFloat() || at.arity < 3 {
		s.diags.malformed(l, "Color", "expected float[3] or float[4] data")
		return
	}
	vals := l.floats(next)
	if len(vals) < 3 {
		s.diags.malformed(l, "Color", "expected 3 components, got %d", len(vals))
		return
	}
	// The last complete colour on the line wins.
	last := (len(vals)/at.arity - 1) * at.arity
	if last < 0 {
		last = 0
	}
	rgb := [3]float32{vals[last], vals[last+1], vals[last+2]}
	switch attrib {
	case "diffuse":
		mat.DiffuseColor = rgb
	case "specular":
		mat.SpecularColor = rgb
	default:
		s.log.Debug("ignoring material color", zap.String("attrib", attrib))
	}
}

func (s *scanner) paramLine(l line) {
	mat := s.currentMaterial()
	if mat == nil {
		return
	}
	props, next := l.properties(1)
	attrib, ok := stringProp(props, "attrib")
	if !ok {
		s.diags.malformed(l, "Param", "missing attrib property")
		return
	}
	if attrib != "specular_power" {
		return
	}
	vals := l.floats(next)
	if len(vals) == 0 {
		s.diags.malformed(l, "Param", "missing float value")
		return
	}
	mat.SpecularPower = vals[0]
}

func (s *scanner) animationLine(l line) {
	n := s.currentNode()
	if n == nil {
		s.log.Debug("animation outside a node", zap.Int("line", l.num))
		return
	}
	props, _ := l.properties(1)
	anim := &Animation{}
	if t, ok := props["begin"]; ok {
		if f, ok := parseFloat(t.Lit); ok {
			anim.Begin = f
		}
	}
	if t, ok := props["end"]; ok {
		if f, ok := parseFloat(t.Lit); ok {
			anim.End = f
		}
	}
	n.animation = anim
	s.regions.open(regionAnimation, s.depth, anim)
}

func (s *scanner) trackLine(l line) {
	r := s.regions.innermost(regionAnimation)
	if r == nil {
		return
	}
	anim := r.payload.(*Animation)
	props, _ := l.properties(1)

	var tr Track
	if t, ok := props["target"]; ok && t.Type == TokenName {
		tr.TargetRef = bareName(t.Lit)
		tr.Target = targetNames[tr.TargetRef]
	} else {
		s.diags.malformed(l, "Track", "missing target reference")
	}
	anim.Tracks = append(anim.Tracks, tr)
	s.regions.open(regionTrack, s.depth, trackRef{anim: anim, index: len(anim.Tracks) - 1})
}

// curveLine starts a Time or Value block. OpenGEX curves default to linear.
func (s *scanner) curveLine(l line, value bool) {
	r := s.regions.innermost(regionTrack)
	if r == nil {
		return
	}
	ref := curveRef{track: r.payload.(trackRef), value: value}
	props, _ := l.properties(1)
	curve := Curve{Type: CurveLinear}
	if t, ok := props["curve"]; ok {
		curve.Type = CurveUnknown
		if t.Type == TokenString {
			curve.Type = parseCurve(t.Lit)
		}
	}
	*ref.get() = curve

	kind := regionTime
	if value {
		kind = regionValue
	}
	s.regions.open(kind, s.depth, ref)
}

// keyLine appends one Key to every open Time and Value block. The key's
// floats are all numbers after the property list; a Key whose data does
// not appear on its own line is filled by the lines of its body.
func (s *scanner) keyLine(l line) {
	var curves []curveRef
	for _, r := range s.regions.all(regionTime) {
		curves = append(curves, r.payload.(curveRef))
	}
	for _, r := range s.regions.all(regionValue) {
		curves = append(curves, r.payload.(curveRef))
	}
	if len(curves) == 0 {
		return
	}

	props, next := l.properties(1)
	kind, kindSet := KeySingle, false
	if k, ok := stringProp(props, "kind"); ok {
		switch k {
		case "+control":
			kind, kindSet = KeyPlusControl, true
		case "-control":
			kind, kindSet = KeyMinusControl, true
		}
	}
	at, typed := l.dataType(next)
	if typed && !kindSet {
		kind = keyKindForArity(at.arity)
	}
	vals := l.floats(next)
	inline := typed && len(vals) > 0

	body := &keyBody{kindSet: kindSet}
	for _, c := range curves {
		curve := c.get()
		curve.Keys = append(curve.Keys, Key{Floats: append([]float32(nil), vals...), Kind: kind})
		body.keys = append(body.keys, keyRef{curve: c, index: len(curve.Keys) - 1})
	}
	if !inline {
		s.regions.open(regionKey, s.depth, body)
		s.openTail = true
	}
}

// route feeds a numeric payload line to the consumer of the array region.
func (s *scanner) route(r *region, l line, from int) {
	arr := r.payload.(*arrayRegion)
	if arr.consumer == nil {
		return
	}
	at := arr.typ

	switch arr.consumer.kind {
	case regionTransform:
		target, _ := arr.consumer.payload.(*[16]float32)
		if target == nil || !at.isFloat() || at.arity != 16 {
			return
		}
		for _, f := range l.floats(from) {
			if r.index >= len(target) {
				break
			}
			target[r.index] = f
			r.index++
		}

	case regionVertexArray:
		va := arr.consumer.payload.(vertexArray)
		if va.obj == nil || !at.isFloat() {
			return
		}
		vals := l.floats(from)
		switch {
		case (va.stream == streamPosition || va.stream == streamNormal) && at.arity == 3:
			for i := 0; i+3 <= len(vals); i += 3 {
				v := [3]float32{vals[i], vals[i+1], vals[i+2]}
				if va.stream == streamPosition {
					va.obj.Vertices = append(va.obj.Vertices, v)
				} else {
					va.obj.Normals = append(va.obj.Normals, v)
				}
			}
			s.checkTuples(l, len(vals), 3)
		case va.stream == streamTexcoord && at.arity == 2:
			for i := 0; i+2 <= len(vals); i += 2 {
				va.obj.TexCoords = append(va.obj.TexCoords, [2]float32{vals[i], vals[i+1]})
			}
			s.checkTuples(l, len(vals), 2)
		}

	case regionIndexArray:
		obj, _ := arr.consumer.payload.(*GeometryObject)
		if obj == nil || !at.isUnsigned() {
			return
		}
		obj.Indices = append(obj.Indices, l.uints(from)...)

	case regionKey:
		body := arr.consumer.payload.(*keyBody)
		vals := l.floats(from)
		for _, ref := range body.keys {
			k := ref.get()
			k.Floats = append(k.Floats, vals...)
			if !body.kindSet {
				k.Kind = keyKindForArity(at.arity)
			}
		}
	}
}

// checkTuples reports a line whose values do not form whole tuples. Each
// line must carry complete tuples; a partial tuple is not continued on the
// next line.
func (s *scanner) checkTuples(l line, n, arity int) {
	if rem := n % arity; rem != 0 {
		s.diags.malformed(l, "VertexArray", "incomplete tuple: %d trailing value(s) for arity %d", rem, arity)
	}
}
