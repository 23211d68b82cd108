package cli

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/db"
	"github.com/atlekbai/crud_registry/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Object   string
	Dialect  string // "postgres" | "sqlite"
	And      string
	PageNo   int
	PageSize int
	SortBy   string
	SortDir  string
}

// CompileResult is the json form of compile output.
type CompileResult struct {
	Object string `json:"object"`
	SQL    string `json:"sql"`
	Args   []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <condition>",
		Short: "Print the list query for a condition",
		Long: `Compile a JSON condition against one object and print the paged
list query with its bind arguments. --and conjoins a second condition,
the way soft-delete guards are added.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Object, "object", "o", "", "object API name")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "postgres", "placeholder dialect (postgres|sqlite)")
	cmd.Flags().StringVar(&opts.And, "and", "", "condition to conjoin with the first")
	cmd.Flags().IntVar(&opts.PageNo, "page", 0, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "size", 0, "page size")
	cmd.Flags().StringVar(&opts.SortBy, "sort-by", "", "sort field API name")
	cmd.Flags().StringVar(&opts.SortDir, "sort-dir", "", "sort direction (ASC|DESC)")
	cmd.MarkFlagRequired("object")

	return cmd
}

func runCompile(opts *CompileOptions, cond string, cmd *cobra.Command) error {
	format, err := dialectFormat(opts.Dialect)
	if err != nil {
		return err
	}
	cache, err := loadSchema(opts.SchemaFile)
	if err != nil {
		return err
	}
	obj := cache.Get(opts.Object)
	if obj == nil {
		return fmt.Errorf("unknown object %q", opts.Object)
	}

	compiler := condition.NewCompiler(cache)
	var pred *condition.Predicate
	if opts.And != "" {
		pred, err = compiler.CompileConjoined(obj, cond, opts.And)
	} else {
		pred, err = compiler.Compile(obj, cond)
	}
	if err != nil {
		return err
	}

	page, err := query.NewPageParams(opts.PageNo, opts.PageSize, opts.SortBy, opts.SortDir, obj)
	if err != nil {
		return err
	}
	sqlStr, args, err := query.NewBuilder(obj, format).BuildList(pred, page)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if args == nil {
			args = []any{}
		}
		return json.NewEncoder(out).Encode(CompileResult{Object: obj.APIName, SQL: sqlStr, Args: args})
	}
	fmt.Fprintln(out, sqlStr)
	fmt.Fprintf(out, "args: %v\n", args)
	return nil
}

func dialectFormat(dialect string) (sq.PlaceholderFormat, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "pg":
		return db.Placeholder(db.DriverPgx), nil
	case "sqlite":
		return db.Placeholder(db.DriverSQLite), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}
