package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/gradecast/internal/analysis"
	"github.com/KaramelBytes/gradecast/internal/loader"
	"github.com/KaramelBytes/gradecast/internal/table"
	"github.com/KaramelBytes/gradecast/internal/utils"
)

// loadFlags are the parser flags shared by every command that reads a table.
type loadFlags struct {
	sheet        string
	delimiter    string
	decimalComma bool
	maxRows      int
}

func (f *loadFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.sheet, "sheet", "", "XLSX: sheet name (default first sheet)")
	c.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (auto-detect if omitted)")
	c.Flags().BoolVar(&f.decimalComma, "decimal-comma", false, "read numbers like 3,5 as 3.5")
	c.Flags().IntVar(&f.maxRows, "max-rows", 0, "maximum data rows to read (0 = unlimited)")
}

func (f *loadFlags) options() (loader.Options, error) {
	opt := loader.Options{Sheet: f.sheet, DecimalComma: f.decimalComma, MaxRows: f.maxRows}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case ";":
		opt.Delimiter = ';'
	case "\t", "tab":
		opt.Delimiter = '\t'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	return opt, nil
}

func (f *loadFlags) load(path string) (*table.Table, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	return loader.LoadFile(path, opt)
}

var (
	insLoad       loadFlags
	insOutputPath string
	insSampleRows int
	insMarkdown   bool
	insJSON       bool
	insCorr       bool
	insOutlierThr float64
	insDtypes     []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Preview a CSV/XLSX table: shape, column dtypes, missing values and head rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := insLoad.load(args[0])
		if err != nil {
			return err
		}
		if err := applyDtypeFlags(t, insDtypes); err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		opt.SampleRows = insSampleRows
		opt.Correlations = insCorr
		opt.OutlierThreshold = insOutlierThr
		rep := analysis.Describe(t, opt)

		if insOutputPath != "" {
			if err := utils.SafeWriteFile(insOutputPath, []byte(rep.Markdown())); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			okf("Wrote summary to %s", insOutputPath)
			return nil
		}
		switch {
		case insJSON:
			b, err := utils.PrettyJSON(rep)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		case insMarkdown:
			fmt.Println(rep.Markdown())
		default:
			printReport(rep)
		}
		return nil
	},
}

// applyDtypeFlags converts columns in place from "col=dtype" flags. Failed
// conversions are reported and skipped.
func applyDtypeFlags(t *table.Table, specs []string) error {
	if len(specs) == 0 {
		return nil
	}
	changes := make([]loader.DtypeChange, 0, len(specs))
	for _, s := range specs {
		ch, err := loader.ParseDtypeChange(s)
		if err != nil {
			return err
		}
		changes = append(changes, ch)
	}
	for _, res := range loader.ApplyDtypes(t, changes) {
		switch {
		case res.Err != nil:
			warnf("could not convert column %s to %s: %s", res.Column, res.Kind, res.Message())
		case res.Changed:
			okf("Changed column %s to dtype %s", res.Column, res.Kind)
		}
	}
	return nil
}

func printReport(rep *analysis.Report) {
	color.Cyan("%s", rep.Name)
	fmt.Printf("Rows: %d  Columns: %d\n\n", rep.Rows, len(rep.Cols))

	if len(rep.Samples) > 0 {
		color.Yellow("Data preview")
		head := tablewriter.NewWriter(os.Stdout)
		names := make([]string, len(rep.Cols))
		for i, c := range rep.Cols {
			names[i] = c.Name
		}
		head.SetHeader(names)
		head.AppendBulk(rep.Samples)
		head.Render()
		fmt.Println()
	}

	color.Yellow("Column info")
	info := tablewriter.NewWriter(os.Stdout)
	info.SetHeader([]string{"Column", "Dtype", "Non-null", "Missing", "Unique", "Summary"})
	for _, c := range rep.Cols {
		info.Append([]string{
			c.Name,
			c.Dtype,
			strconv.Itoa(c.NonNull),
			strconv.Itoa(c.Missing),
			strconv.Itoa(c.Unique),
			columnDigest(c),
		})
	}
	info.Render()

	if rep.MissingTotal > 0 {
		warnf("the dataset has %d missing values", rep.MissingTotal)
	} else {
		okf("No missing values")
	}
}

func columnDigest(c analysis.ColumnSummary) string {
	switch c.Role {
	case "numeric":
		if c.NonNull == 0 {
			return ""
		}
		return fmt.Sprintf("mean %.4g, std %.4g, [%.4g, %.4g]", c.Mean, c.Std, c.Min, c.Max)
	case "categorical":
		parts := make([]string, 0, len(c.TopValues))
		for _, kv := range c.TopValues {
			parts = append(parts, fmt.Sprintf("%s(%d)", kv.Value, kv.Count))
		}
		return strings.Join(parts, ", ")
	default:
		return strings.Join(c.ExampleTexts, " | ")
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	insLoad.bind(inspectCmd)
	inspectCmd.Flags().StringVarP(&insOutputPath, "output", "o", "", "optional path to write the summary (Markdown)")
	inspectCmd.Flags().IntVar(&insSampleRows, "sample-rows", 5, "number of head rows to include")
	inspectCmd.Flags().BoolVar(&insMarkdown, "markdown", false, "print the Markdown summary instead of tables")
	inspectCmd.Flags().BoolVar(&insJSON, "json", false, "print the summary as JSON")
	inspectCmd.Flags().BoolVar(&insCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	inspectCmd.Flags().Float64Var(&insOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (0 disables)")
	inspectCmd.Flags().StringArrayVar(&insDtypes, "dtype", nil, "change a column dtype before inspecting: col=int64|float64|object (repeatable)")
}
