package classifier

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"sort"
	"sync"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Tree is a CART-style binary classifier with gini impurity. Leaves
// store the positive-class fraction of their training rows.
type Tree struct {
	MaxDepth        int // 0 means no depth limit
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 means consider every feature at each split
	Seed            int64

	root      *treeNode
	nFeatures int
}

type treeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x <= Threshold goes left
	Left      *treeNode
	Right     *treeNode
	N         int
	Proba     float64 // positive-class fraction at a leaf
}

func newTree(seed int64) *Tree {
	return &Tree{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            seed,
	}
}

func (t *Tree) Kind() core.ClassifierKind { return core.ClassifierDT }

func (t *Tree) Fit(X [][]float64, y []int) error {
	p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	t.nFeatures = p

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(t.Seed))
	t.root = t.buildNode(X, y, idx, 0, rng)
	return nil
}

func (t *Tree) buildNode(X [][]float64, y []int, idx []int, depth int, rng *rand.Rand) *treeNode {
	node := &treeNode{N: len(idx)}
	pos := countPositives(y, idx)

	leaf := func() *treeNode {
		node.Leaf = true
		node.Proba = float64(pos) / float64(len(idx))
		return node
	}
	if pos == 0 || pos == len(idx) || len(idx) < t.MinSamplesSplit {
		return leaf()
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return leaf()
	}

	features := t.sampleFeatures(rng)
	parent := gini(pos, len(idx)-pos)

	// Search features in parallel, then pick the winner in feature
	// order so ties never depend on goroutine scheduling.
	results := make([]split, len(features))
	var wg sync.WaitGroup
	for i, f := range features {
		wg.Add(1)
		go func(i, f int) {
			defer wg.Done()
			results[i] = t.bestSplit(X, y, idx, f, parent)
		}(i, f)
	}
	wg.Wait()

	best := split{feature: -1}
	for _, r := range results {
		if r.feature >= 0 && r.gain > best.gain {
			best = r
		}
	}
	if best.feature < 0 || best.gain <= 0 {
		return leaf()
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = t.buildNode(X, y, best.left, depth+1, rng)
	node.Right = t.buildNode(X, y, best.right, depth+1, rng)
	return node
}

type split struct {
	gain      float64
	feature   int
	threshold float64
	left      []int
	right     []int
}

// bestSplit scans every midpoint between distinct sorted values of one
// feature and keeps the split with the largest impurity decrease.
func (t *Tree) bestSplit(X [][]float64, y []int, idx []int, f int, parent float64) split {
	best := split{feature: -1}

	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

	total := len(order)
	totalPos := countPositives(y, order)
	leftPos := 0
	for s := 1; s < total; s++ {
		leftPos += y[order[s-1]]
		if X[order[s]][f] == X[order[s-1]][f] {
			continue
		}
		if s < t.MinSamplesLeaf || total-s < t.MinSamplesLeaf {
			continue
		}
		impL := gini(leftPos, s-leftPos)
		impR := gini(totalPos-leftPos, total-s-(totalPos-leftPos))
		weighted := float64(s)/float64(total)*impL + float64(total-s)/float64(total)*impR
		gain := parent - weighted
		if gain > best.gain {
			best = split{
				gain:      gain,
				feature:   f,
				threshold: (X[order[s-1]][f] + X[order[s]][f]) / 2,
				left:      append([]int(nil), order[:s]...),
				right:     append([]int(nil), order[s:]...),
			}
		}
	}
	return best
}

func (t *Tree) sampleFeatures(rng *rand.Rand) []int {
	features := make([]int, t.nFeatures)
	for j := range features {
		features[j] = j
	}
	if t.MaxFeatures <= 0 || t.MaxFeatures >= t.nFeatures {
		return features
	}
	rng.Shuffle(len(features), func(i, j int) { features[i], features[j] = features[j], features[i] })
	features = features[:t.MaxFeatures]
	sort.Ints(features)
	return features
}

func (t *Tree) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, t.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		node := t.root
		for !node.Leaf {
			if row[node.Feature] <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		out[i] = node.Proba
	}
	return out, nil
}

type treeState struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	Seed            int64
	NFeatures       int
	Root            *treeNode
}

func (t *Tree) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	state := treeState{
		MaxDepth:        t.MaxDepth,
		MinSamplesSplit: t.MinSamplesSplit,
		MinSamplesLeaf:  t.MinSamplesLeaf,
		MaxFeatures:     t.MaxFeatures,
		Seed:            t.Seed,
		NFeatures:       t.nFeatures,
		Root:            t.root,
	}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Tree) UnmarshalBinary(data []byte) error {
	var state treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}
	t.MaxDepth = state.MaxDepth
	t.MinSamplesSplit = state.MinSamplesSplit
	t.MinSamplesLeaf = state.MinSamplesLeaf
	t.MaxFeatures = state.MaxFeatures
	t.Seed = state.Seed
	t.nFeatures = state.NFeatures
	t.root = state.Root
	return nil
}

func countPositives(y []int, idx []int) int {
	pos := 0
	for _, i := range idx {
		pos += y[i]
	}
	return pos
}

func gini(pos, neg int) float64 {
	n := float64(pos + neg)
	if n == 0 {
		return 0
	}
	p := float64(pos) / n
	q := float64(neg) / n
	return p*(1-p) + q*(1-q)
}
