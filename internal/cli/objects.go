package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type objectSummary struct {
	APIName    string   `json:"apiName"`
	Table      string   `json:"table"`
	SoftDelete bool     `json:"softDelete"`
	Fields     []string `json:"fields"`
	Relations  []string `json:"relations"`
}

// NewObjectsCommand creates the objects command.
func NewObjectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "objects",
		Short:        "List the objects defined in the schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObjects(rootOpts, cmd)
		},
	}
}

func runObjects(opts *RootOptions, cmd *cobra.Command) error {
	cache, err := loadSchema(opts.SchemaFile)
	if err != nil {
		return err
	}

	summaries := make([]objectSummary, 0, cache.ObjectCount())
	for _, obj := range cache.Objects() {
		s := objectSummary{
			APIName:    obj.APIName,
			Table:      obj.TableName(),
			SoftDelete: obj.SoftDeletable(),
			Fields:     make([]string, 0, len(obj.Fields)),
			Relations:  make([]string, 0, len(obj.Relations)),
		}
		for _, f := range obj.Fields {
			s.Fields = append(s.Fields, f.APIName)
		}
		for _, r := range obj.Relations {
			s.Relations = append(s.Relations, r.APIName)
		}
		summaries = append(summaries, s)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(summaries)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tTABLE\tSOFT DELETE\tFIELDS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", s.APIName, s.Table, s.SoftDelete, len(s.Fields))
	}
	return tw.Flush()
}
