package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/graph"
)

var (
	graphDepth       int
	graphHideDerived bool
	graphOutput      string
	graphReverse     bool
)

// GraphCmd shows the relationship neighborhood of an artifact
var GraphCmd = &cobra.Command{
	Use:   "graph UUID",
	Short: "Show the relationship neighborhood of an artifact",
	Long: `Walk forward and reverse relationships from an artifact.

Examples:
  artificer graph 3f1c... --depth 2
  artificer graph 3f1c... --reverse
  artificer graph 3f1c... -o json > graph.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	GraphCmd.Flags().IntVarP(&graphDepth, "depth", "d", graph.DefaultDepth, "Hop limit from the artifact")
	GraphCmd.Flags().BoolVar(&graphHideDerived, "hide-derived", false, "Hide derived artifacts")
	GraphCmd.Flags().BoolVar(&graphReverse, "reverse", false, "Only list relationships that target the artifact")
	GraphCmd.Flags().StringVarP(&graphOutput, "output", "o", OutputTable, "Output format (table/json/yaml)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if graphReverse {
		reverse, err := s.repo.ReverseRelationships(s.ctx, args[0])
		if err != nil {
			return err
		}
		if graphOutput != OutputTable {
			return writeValue(cmd.OutOrStdout(), graphOutput, reverse)
		}
		data := pterm.TableData{{"Source", "Relationship"}}
		for _, rr := range reverse {
			data = append(data, []string{rr.Source, rr.Name})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	g, err := s.repo.Neighborhood(s.ctx, args[0], graph.Options{Depth: graphDepth, HideDerived: graphHideDerived})
	if err != nil {
		return err
	}
	if graphOutput != OutputTable {
		return writeValue(cmd.OutOrStdout(), graphOutput, g)
	}

	labels := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
	}
	data := pterm.TableData{{"Source", "Relationship", "Target"}}
	for _, l := range g.Links {
		if l.Hidden {
			continue
		}
		data = append(data, []string{labels[l.Source], l.Type, labels[l.Target]})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%d nodes, %d edges", g.Meta.Stats.TotalNodes, g.Meta.Stats.TotalEdges)
	return nil
}
