package opengex

// regionKind identifies the structure that opened a region.
type regionKind int

const (
	regionNode regionKind = iota
	regionObject
	regionMesh
	regionVertexArray
	regionIndexArray
	regionMaterial
	regionTexture
	regionTransform
	regionArray
	regionAnimation
	regionTrack
	regionTime
	regionValue
	regionKey
)

var regionNames = [...]string{
	regionNode:        "GeometryNode",
	regionObject:      "GeometryObject",
	regionMesh:        "Mesh",
	regionVertexArray: "VertexArray",
	regionIndexArray:  "IndexArray",
	regionMaterial:    "Material",
	regionTexture:     "Texture",
	regionTransform:   "Transform",
	regionArray:       "Array",
	regionAnimation:   "Animation",
	regionTrack:       "Track",
	regionTime:        "Time",
	regionValue:       "Value",
	regionKey:         "Key",
}

func (k regionKind) String() string {
	if int(k) >= 0 && int(k) < len(regionNames) {
		return regionNames[k]
	}
	return "Region"
}

// region is one open bracket-scoped structure. depth is the bracket depth
// measured before the structure's opening brace, so the region ends on the
// close event that brings the depth back to it.
type region struct {
	kind    regionKind
	depth   int
	index   int // Write position for structures that fill a fixed buffer
	payload any
}

// regionStack holds the currently open regions, innermost last.
type regionStack struct {
	regions []*region
}

// open pushes a region opened at depth. Regions still open at the same or
// a greater depth never received a body (or closed inline) and are dropped
// first, so no two open regions share a depth.
func (s *regionStack) open(kind regionKind, depth int, payload any) *region {
	s.drop(depth)
	r := &region{kind: kind, depth: depth, payload: payload}
	s.regions = append(s.regions, r)
	return r
}

// close handles a close-brace event that left the counter at depth. Every
// region recorded at that depth or deeper ends; they are returned
// innermost first.
func (s *regionStack) close(depth int) []*region {
	return s.drop(depth)
}

func (s *regionStack) drop(depth int) []*region {
	var closed []*region
	for len(s.regions) > 0 {
		top := s.regions[len(s.regions)-1]
		if top.depth < depth {
			break
		}
		closed = append(closed, top)
		s.regions = s.regions[:len(s.regions)-1]
	}
	return closed
}

// innermost returns the most recently opened region of kind, or nil.
func (s *regionStack) innermost(kind regionKind) *region {
	for i := len(s.regions) - 1; i >= 0; i-- {
		if s.regions[i].kind == kind {
			return s.regions[i]
		}
	}
	return nil
}

// innermostOf returns the most recently opened region of any of kinds.
func (s *regionStack) innermostOf(kinds ...regionKind) *region {
	for i := len(s.regions) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if s.regions[i].kind == k {
				return s.regions[i]
			}
		}
	}
	return nil
}

// below returns the innermost region of any of kinds that was opened
// before r.
func (s *regionStack) below(r *region, kinds ...regionKind) *region {
	pos := -1
	for i, reg := range s.regions {
		if reg == r {
			pos = i
		}
	}
	for i := pos - 1; i >= 0; i-- {
		for _, k := range kinds {
			if s.regions[i].kind == k {
				return s.regions[i]
			}
		}
	}
	return nil
}

// all returns every open region of kind, outermost first.
func (s *regionStack) all(kind regionKind) []*region {
	var out []*region
	for _, r := range s.regions {
		if r.kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (s *regionStack) len() int { return len(s.regions) }
