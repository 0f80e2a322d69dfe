package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Tenant         string
	Filters        []string
	Sort           string
	Limit          int
	After          string
	IncludeDeleted bool
}

// ListResult is the output of list.
type ListResult struct {
	Records []ir.Record `json:"records"`
	Total   int         `json:"total"`
}

// String prints one canonical JSON record per line, then the counts.
func (r ListResult) String() string {
	var b strings.Builder
	for _, rec := range r.Records {
		data, err := ir.MarshalRecord(rec)
		if err != nil {
			fmt.Fprintf(&b, "%v\n", rec)
			continue
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d shown, %d total)", len(r.Records), r.Total)
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "List the records of a collection",
		Long: `List the records of a collection.

Filters take the form [op_]field=value where op is one of not, gt, min, lt,
max, in or exclude (no prefix tests equality). Values are read as JSON when
possible, as strings otherwise; in_ and exclude_ take comma-separated lists.

--sort takes comma-separated fields, '-' for descending. To fetch the next
page, pass the last printed record to --after with the same sort.

Example:
  recstore list article --tenant alice --filter min_read_position=100 --sort -last_modified --limit 20
  recstore list article --tenant alice --filter in_id=a,b --include-deleted`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Tenant, "tenant", "t", "", "tenant id (required)")
	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "filter as [op_]field=value (repeatable)")
	cmd.Flags().StringVarP(&opts.Sort, "sort", "s", "", "sort fields, comma-separated, '-' for descending")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum records to print (0 = no limit)")
	cmd.Flags().StringVar(&opts.After, "after", "", "JSON record to resume after")
	cmd.Flags().BoolVar(&opts.IncludeDeleted, "include-deleted", false, "include tombstones")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runList(opts *ListOptions, resource string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	r := opts.Config.Resource(resource)

	q, err := opts.query(r)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid arguments", err)
	}
	formatter.VerboseLog("query: %d filter(s), %d sort key(s), limit %d", len(q.Filters), len(q.Sorting), q.Limit)

	s, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(s)

	records, total, err := s.GetAll(cmd.Context(), r, opts.Tenant, q)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "list failed", err)
	}
	return formatter.Success(ListResult{Records: records, Total: total})
}

// query builds the GetAll query from the flags.
func (o *ListOptions) query(r *ir.Resource) (queryir.Query, error) {
	q := queryir.Query{
		Sorting:        parseSort(o.Sort),
		Limit:          o.Limit,
		IncludeDeleted: o.IncludeDeleted,
	}
	for _, f := range o.Filters {
		cond, err := parseFilter(f)
		if err != nil {
			return queryir.Query{}, err
		}
		q.Filters = append(q.Filters, cond)
	}
	if o.After != "" {
		last, err := ir.UnmarshalRecord([]byte(o.After))
		if err != nil {
			return queryir.Query{}, fmt.Errorf("--after: %w", err)
		}
		rules, err := queryir.KeysetRules(r, q.Sorting, last)
		if err != nil {
			return queryir.Query{}, err
		}
		q.Pagination = rules
	}
	return q, nil
}
