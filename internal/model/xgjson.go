package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/rain-forecast-service/internal/domain"
)

// jsonBooster evaluates models saved with XGBoost's JSON serialization
// (Booster.save_model("model.json")). Only numerical splits of a gbtree
// booster with a logistic objective are supported.
type jsonBooster struct {
	trees []tree

	// baseMargin is the logit of base_score, added to the sum of leaf values.
	baseMargin float64

	// columns[i] is the FeatureVector row index feeding model column i.
	columns []int
}

// tree is a flattened regression tree; node 0 is the root.
type tree struct {
	nodes []treeNode
}

type treeNode struct {
	feature     int
	threshold   float32
	left        int
	right       int
	defaultLeft bool
	leaf        bool
	value       float32
}

// xgbDocument mirrors the parts of XGBoost's JSON model schema we read.
type xgbDocument struct {
	Learner struct {
		FeatureNames    []string `json:"feature_names"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees    []xgbTree `json:"trees"`
				TreeInfo []int     `json:"tree_info"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
	Version []int `json:"version"`
}

type xgbTree struct {
	LeftChildren    []int      `json:"left_children"`
	RightChildren   []int      `json:"right_children"`
	SplitIndices    []int      `json:"split_indices"`
	SplitConditions []float64  `json:"split_conditions"`
	DefaultLeft     []jsonFlag `json:"default_left"`
	SplitType       []int      `json:"split_type"`
}

// jsonFlag accepts both 0/1 and true/false; XGBoost releases disagree on the encoding.
type jsonFlag bool

func (f *jsonFlag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "1", "true":
		*f = true
	case "0", "false":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

func loadJSONBooster(path string) (*jsonBooster, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseJSONBooster(payload)
}

func parseJSONBooster(payload []byte) (*jsonBooster, error) {
	var doc xgbDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode model json: %w", err)
	}
	l := doc.Learner

	if name := l.GradientBooster.Name; name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q, want gbtree", name)
	}
	switch l.Objective.Name {
	case "binary:logistic", "reg:logistic":
	default:
		return nil, fmt.Errorf("unsupported objective %q, want binary:logistic", l.Objective.Name)
	}
	if n := parseIntParam(l.LearnerModelParam.NumClass); n > 1 {
		return nil, fmt.Errorf("multiclass models are not supported (num_class=%d)", n)
	}
	if n := parseIntParam(l.LearnerModelParam.NumTarget); n > 1 {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%d)", n)
	}

	baseScore, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v outside (0,1)", baseScore)
	}

	columns, err := resolveColumns(l.FeatureNames, parseIntParam(l.LearnerModelParam.NumFeature))
	if err != nil {
		return nil, err
	}

	rawTrees := l.GradientBooster.Model.Trees
	if len(rawTrees) == 0 {
		return nil, errors.New("no trees in model")
	}
	trees := make([]tree, 0, len(rawTrees))
	for i, rt := range rawTrees {
		t, err := buildTree(rt, len(columns))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees = append(trees, t)
	}

	return &jsonBooster{
		trees:      trees,
		baseMargin: math.Log(baseScore / (1 - baseScore)),
		columns:    columns,
	}, nil
}

// parseBaseScore handles both "5E-1" and the bracketed "[5E-1]" written by XGBoost 2.x.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(s, "[]"))
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q", s)
	}
	return v, nil
}

func parseIntParam(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// resolveColumns maps model columns onto FeatureVector row positions. Named
// models must use exactly the four feature names in any order; unnamed models
// are read positionally.
func resolveColumns(names []string, numFeature int) ([]int, error) {
	if len(names) == 0 {
		if numFeature > len(domain.FeatureNames) {
			return nil, fmt.Errorf("model expects %d features, rows have %d", numFeature, len(domain.FeatureNames))
		}
		if numFeature <= 0 {
			numFeature = len(domain.FeatureNames)
		}
		columns := make([]int, numFeature)
		for i := range columns {
			columns[i] = i
		}
		return columns, nil
	}

	if len(names) != len(domain.FeatureNames) {
		return nil, fmt.Errorf("feature names mismatch: model has %v, want %v", names, domain.FeatureNames)
	}
	columns := make([]int, len(names))
	for i, name := range names {
		idx := slices.Index(domain.FeatureNames, name)
		if idx < 0 || slices.Contains(columns[:i], idx) {
			return nil, fmt.Errorf("feature names mismatch: model has %v, want %v", names, domain.FeatureNames)
		}
		columns[i] = idx
	}
	return columns, nil
}

func buildTree(rt xgbTree, numColumns int) (tree, error) {
	n := len(rt.LeftChildren)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(rt.RightChildren) != n || len(rt.SplitIndices) != n || len(rt.SplitConditions) != n {
		return tree{}, errors.New("node arrays differ in length")
	}
	if len(rt.DefaultLeft) != 0 && len(rt.DefaultLeft) != n {
		return tree{}, errors.New("default_left length differs from node count")
	}
	for _, st := range rt.SplitType {
		if st != 0 {
			return tree{}, errors.New("categorical splits are not supported")
		}
	}

	nodes := make([]treeNode, n)
	for i := range n {
		left, right := rt.LeftChildren[i], rt.RightChildren[i]
		if left == -1 {
			nodes[i] = treeNode{feature: -1, left: -1, right: -1, leaf: true, value: float32(rt.SplitConditions[i])}
			continue
		}
		if left <= 0 || left >= n || right <= 0 || right >= n {
			return tree{}, fmt.Errorf("node %d has children out of range", i)
		}
		feature := rt.SplitIndices[i]
		if feature < 0 || feature >= numColumns {
			return tree{}, fmt.Errorf("node %d splits on unknown feature %d", i, feature)
		}
		nodes[i] = treeNode{
			feature:     feature,
			threshold:   float32(rt.SplitConditions[i]),
			left:        left,
			right:       right,
			defaultLeft: len(rt.DefaultLeft) > 0 && bool(rt.DefaultLeft[i]),
		}
	}
	return tree{nodes: nodes}, nil
}

func (b *jsonBooster) predictRow(row []float64) (float64, error) {
	fvals := make([]float32, len(b.columns))
	for i, src := range b.columns {
		if src >= len(row) {
			return 0, fmt.Errorf("row has %d values, model column %d needs index %d", len(row), i, src)
		}
		fvals[i] = float32(row[src])
	}

	margin := b.baseMargin
	for i := range b.trees {
		v, err := b.trees[i].leafValue(fvals)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		margin += float64(v)
	}
	return sigmoid(margin), nil
}

func (b *jsonBooster) numTrees() int { return len(b.trees) }

// leafValue walks from the root to a leaf. A NaN feature follows the node's
// default direction; otherwise values strictly below the threshold go left.
func (t tree) leafValue(fvals []float32) (float32, error) {
	idx := 0
	for range len(t.nodes) {
		node := t.nodes[idx]
		if node.leaf {
			return node.value, nil
		}
		x := fvals[node.feature]
		switch {
		case math.IsNaN(float64(x)):
			if node.defaultLeft {
				idx = node.left
			} else {
				idx = node.right
			}
		case x < node.threshold:
			idx = node.left
		default:
			idx = node.right
		}
	}
	return 0, errors.New("invalid tree state")
}
