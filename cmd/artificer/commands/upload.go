package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/repository"
)

var (
	uploadType       string
	uploadVersion    string
	uploadDesc       string
	uploadProps      []string
	uploadClasses    []string
	uploadWait       bool
	uploadRelink     bool
	uploadOutput     string
	uploadShowDerive bool
)

// UploadCmd stores documents and derives them
var UploadCmd = &cobra.Command{
	Use:   "upload FILE|URL...",
	Short: "Store documents and derive their components",
	Long: `Store one or more documents. The type is detected from content unless --type is given.

Examples:
  artificer upload orders.xsd --wait
  artificer upload service.wsdl --prop owner=ops --classify http://example.org/colors#Red
  artificer upload bundle.zip --wait --derived
  artificer upload https://example.com/schemas/order.xsd --wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	UploadCmd.Flags().StringVarP(&uploadType, "type", "t", "", "Artifact type (detected when empty)")
	UploadCmd.Flags().StringVar(&uploadVersion, "version", "", "Artifact version")
	UploadCmd.Flags().StringVar(&uploadDesc, "description", "", "Artifact description")
	UploadCmd.Flags().StringArrayVarP(&uploadProps, "prop", "p", nil, "Custom property name=value (repeatable)")
	UploadCmd.Flags().StringArrayVarP(&uploadClasses, "classify", "c", nil, "Classification URI (repeatable)")
	UploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "Wait for derivation to finish")
	UploadCmd.Flags().BoolVar(&uploadRelink, "relink", false, "Relink pending references of other artifacts")
	UploadCmd.Flags().BoolVar(&uploadShowDerive, "derived", false, "List the derived artifacts (implies --wait)")
	UploadCmd.Flags().StringVarP(&uploadOutput, "output", "o", OutputTable, "Output format (table/json/yaml)")
}

func parseProperties(pairs []string) (artifact.Properties, error) {
	var props artifact.Properties
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.NewInvalidRequestError("property %q is not name=value", pair)
		}
		props.Set(name, value)
	}
	return props, props.Validate()
}

func runUpload(cmd *cobra.Command, args []string) error {
	props, err := parseProperties(uploadProps)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := repository.UploadOptions{
		Description:      uploadDesc,
		Version:          uploadVersion,
		Properties:       props,
		Classifications:  uploadClasses,
		RelinkDependents: uploadRelink,
		Wait:             uploadWait || uploadShowDerive,
	}

	var stored []*artifact.Artifact
	for _, path := range args {
		name, content, err := s.readSource(path)
		if err != nil {
			return err
		}
		spinner, _ := pterm.DefaultSpinner.Start("Uploading " + path)
		a, err := s.repo.Upload(s.ctx, uploadType, name, content, opts)
		if err != nil {
			spinner.Fail(path)
			return err
		}
		spinner.Success(path + " -> " + a.UUID)
		stored = append(stored, a)

		if uploadShowDerive {
			derived, err := s.repo.Store().DerivedOf(s.ctx, a.UUID)
			if err != nil {
				return err
			}
			stored = append(stored, derived...)
		}
	}
	return writeArtifacts(cmd.OutOrStdout(), uploadOutput, stored)
}
