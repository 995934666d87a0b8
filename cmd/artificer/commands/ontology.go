package commands

import (
	"bytes"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/ontology"
)

// OntologyCmd manages classification ontologies
var OntologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "Manage classification ontologies",
	Long: `Import, export, list and delete OWL ontologies used for classification.

Examples:
  artificer ontology import colors.owl
  artificer ontology ls
  artificer ontology export 0b3c2d1e-... > colors.owl`,
}

var ontologyImportCmd = &cobra.Command{
	Use:   "import FILE|URL",
	Short: "Import an RDF/XML ontology",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		_, content, err := s.readSource(args[0])
		if err != nil {
			return err
		}
		o, err := s.repo.ImportOntology(s.ctx, bytes.NewReader(content))
		if err != nil {
			return err
		}
		n := 0
		o.Walk(func(*ontology.Class) bool { n++; return true })
		pterm.Success.Printfln("Imported %s (%s) with %d classes", o.Base, o.UUID, n)
		return nil
	},
}

var ontologyExportCmd = &cobra.Command{
	Use:   "export UUID",
	Short: "Write an ontology as RDF/XML to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.repo.ExportOntology(s.ctx, args[0], cmd.OutOrStdout())
	},
}

var ontologyListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List ontologies",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		onts, err := s.repo.ListOntologies(s.ctx)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"UUID", "ID", "Label", "Base"}}
		for _, o := range onts {
			data = append(data, []string{o.UUID, o.ID, o.Label, o.Base})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var ontologyDeleteCmd = &cobra.Command{
	Use:   "rm UUID",
	Short: "Delete an ontology whose classes are unused",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.repo.DeleteOntology(s.ctx, args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("Deleted ontology %s", args[0])
		return nil
	},
}

func init() {
	OntologyCmd.AddCommand(ontologyImportCmd)
	OntologyCmd.AddCommand(ontologyExportCmd)
	OntologyCmd.AddCommand(ontologyListCmd)
	OntologyCmd.AddCommand(ontologyDeleteCmd)
}
