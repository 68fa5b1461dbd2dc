// Package mindmap lays out a label tree as positioned nodes and edges for a
// flow-diagram renderer. Placement is a plain grid: depth picks the column,
// pre-order position picks the row.
package mindmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	ColumnWidth = 250
	RowHeight   = 80
	NodeWidth   = 150
)

// Tree is the input shape: a label with optional children.
type Tree struct {
	Label    string `json:"label" yaml:"label"`
	Children []Tree `json:"children,omitempty" yaml:"children,omitempty"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type NodeData struct {
	Label string `json:"label"`
}

type Style struct {
	Background   string `json:"background"`
	Color        string `json:"color"`
	BorderRadius string `json:"borderRadius"`
	Padding      string `json:"padding"`
	Width        int    `json:"width"`
}

type Node struct {
	ID       string   `json:"id"`
	Data     NodeData `json:"data"`
	Position Position `json:"position"`
	Style    Style    `json:"style"`
}

type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

var ErrEmptyRoot = errors.New("mindmap: root label is required")

var (
	rootStyle = Style{Background: "#3b82f6", Color: "#fff", BorderRadius: "8px", Padding: "10px", Width: NodeWidth}
	leafStyle = Style{Background: "#fff", Color: "#000", BorderRadius: "8px", Padding: "10px", Width: NodeWidth}
)

// Layout walks t in pre-order. Node ids are node-0, node-1, ... in visit
// order; a node at depth d with visit index i sits at (d*ColumnWidth, i*RowHeight).
func Layout(t Tree) (Graph, error) {
	if t.Label == "" {
		return Graph{}, ErrEmptyRoot
	}

	g := Graph{Nodes: []Node{}, Edges: []Edge{}}
	var walk func(n Tree, depth int, parentID string)
	walk = func(n Tree, depth int, parentID string) {
		index := len(g.Nodes)
		id := fmt.Sprintf("node-%d", index)

		style := leafStyle
		if depth == 0 {
			style = rootStyle
		}
		g.Nodes = append(g.Nodes, Node{
			ID:       id,
			Data:     NodeData{Label: n.Label},
			Position: Position{X: depth * ColumnWidth, Y: index * RowHeight},
			Style:    style,
		})

		if parentID != "" {
			g.Edges = append(g.Edges, Edge{
				ID:       "e" + parentID + "-" + id,
				Source:   parentID,
				Target:   id,
				Animated: true,
			})
		}

		for _, child := range n.Children {
			walk(child, depth+1, id)
		}
	}
	walk(t, 0, "")

	return g, nil
}

// DecodeJSON reads a single JSON tree.
func DecodeJSON(data []byte) (Tree, error) {
	var t Tree
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&t); err != nil {
		return Tree{}, fmt.Errorf("mindmap: decode JSON tree: %w", err)
	}
	return t, nil
}

// DecodeYAML reads a YAML tree. YAML is a superset of JSON, so this also
// accepts JSON input.
func DecodeYAML(data []byte) (Tree, error) {
	var t Tree
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tree{}, fmt.Errorf("mindmap: decode YAML tree: %w", err)
	}
	return t, nil
}
