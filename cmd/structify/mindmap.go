package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Flashl3opard/structify/internal/mindmap"
)

var mindmapCmd = &cobra.Command{
	Use:   "mindmap <file|->",
	Short: "Lay out a label tree as nodes and edges",
	Long: `Reads a {label, children} tree as JSON or YAML and prints the positioned
graph as JSON. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := stdinOrFile(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		defer in.Close()
		return runMindmap(in, cmd.OutOrStdout())
	},
}

func runMindmap(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read tree: %w", err)
	}

	tree, err := mindmap.DecodeYAML(data)
	if err != nil {
		return err
	}

	graph, err := mindmap.Layout(tree)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(graph)
}
