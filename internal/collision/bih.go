package collision

const (
	bihLeafSize = 4
	bihMaxDepth = 32
)

type bihNode struct {
	bounds      AABox
	axis        int
	split       float32
	left, right *bihNode
	items       []*Model // leaf only
}

func (n *bihNode) leaf() bool { return n.left == nil }

// bih is a bounding interval hierarchy over model boxes, split at the spatial
// median of the longest axis.
type bih struct {
	root  *bihNode
	nodes int
}

func buildBIH(models []*Model) *bih {
	t := &bih{}
	if len(models) == 0 {
		return t
	}
	items := append([]*Model(nil), models...)
	t.root = t.build(items, 0)
	return t
}

func (t *bih) build(items []*Model, depth int) *bihNode {
	t.nodes++
	bounds := items[0].Bounds
	for _, m := range items[1:] {
		bounds = bounds.Merge(m.Bounds)
	}
	n := &bihNode{bounds: bounds}
	if len(items) <= bihLeafSize || depth >= bihMaxDepth {
		n.items = items
		return n
	}

	ext := bounds.Extent()
	axis := 0
	if ext.Y > ext.axis(axis) {
		axis = 1
	}
	if ext.Z > ext.axis(axis) {
		axis = 2
	}
	split := (bounds.Low.axis(axis) + bounds.High.axis(axis)) * 0.5

	var left, right []*Model
	for _, m := range items {
		if m.Bounds.Center().axis(axis) <= split {
			left = append(left, m)
		} else {
			right = append(right, m)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		n.items = items
		return n
	}
	n.axis = axis
	n.split = split
	n.left = t.build(left, depth+1)
	n.right = t.build(right, depth+1)
	return n
}

// intersect walks the hierarchy near side first and calls hit for each
// candidate model whose node box the ray reaches within *maxDist. hit may
// shrink *maxDist; returning false stops the walk.
func (t *bih) intersect(r Ray, maxDist *float32, hit func(*Model) bool) {
	if t.root != nil {
		t.walk(t.root, r, maxDist, hit)
	}
}

func (t *bih) walk(n *bihNode, r Ray, maxDist *float32, hit func(*Model) bool) bool {
	tmin, _, ok := r.slab(n.bounds)
	if !ok || tmin > *maxDist {
		return true
	}
	if n.leaf() {
		for _, m := range n.items {
			if !hit(m) {
				return false
			}
		}
		return true
	}
	near, far := n.left, n.right
	if r.Origin.axis(n.axis) > n.split {
		near, far = far, near
	}
	if !t.walk(near, r, maxDist, hit) {
		return false
	}
	return t.walk(far, r, maxDist, hit)
}
