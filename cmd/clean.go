package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/gradecast/internal/clean"
	"github.com/KaramelBytes/gradecast/internal/session"
	"github.com/KaramelBytes/gradecast/internal/table"
	"github.com/KaramelBytes/gradecast/internal/utils"
)

var (
	clnLoad       loadFlags
	clnColumn     string
	clnStrategy   string
	clnSteps      []string
	clnDtypes     []string
	clnOutputPath string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Fill or drop missing values and export the transformed table as CSV",
	Long: `Apply missing-value strategies to a table and write the result as CSV.

Strategies: drop-all (rows with any gap), drop-rows, ffill, bfill, mean, mode.
Use --column/--strategy for one step or repeat --step column:strategy to chain them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := append([]string(nil), clnSteps...)
		if clnStrategy != "" {
			if clnColumn != "" {
				steps = append(steps, clnColumn+":"+clnStrategy)
			} else {
				steps = append(steps, clnStrategy)
			}
		}
		if len(steps) == 0 && len(clnDtypes) == 0 {
			return fmt.Errorf("nothing to do: pass --strategy, --step or --dtype")
		}
		sess, err := prepareSession(args[0], &clnLoad, clnDtypes, steps)
		if err != nil {
			return err
		}
		out := clnOutputPath
		if out == "" {
			c, err := settings()
			if err != nil {
				return err
			}
			out = filepath.Join(c.OutputDir, "transformed_data.csv")
		}
		var buf bytes.Buffer
		var rows, gaps int
		err = sess.View(func(t *table.Table) error {
			rows, gaps = t.NumRows(), t.MissingTotal()
			return t.WriteCSV(&buf)
		})
		if err != nil {
			return err
		}
		if err := utils.SafeWriteFile(out, buf.Bytes()); err != nil {
			return err
		}
		okf("Wrote %d rows to %s", rows, out)
		if gaps > 0 {
			warnf("%d missing values remain", gaps)
		} else {
			okf("No missing values remain")
		}
		return nil
	},
}

// parseCleanStep reads "column:strategy", or a bare "drop-all".
func parseCleanStep(s string) (string, clean.Strategy, error) {
	col, name := "", s
	if i := strings.LastIndex(s, ":"); i >= 0 {
		col, name = strings.TrimSpace(s[:i]), s[i+1:]
	}
	st, err := clean.ParseStrategy(name)
	if err != nil {
		return "", "", err
	}
	if st.NeedsColumn() && col == "" {
		return "", "", fmt.Errorf("strategy %s needs a column (use column:%s)", st, st)
	}
	return col, st, nil
}

// prepareSession loads path into a fresh session, then applies dtype changes
// and cleaning steps in order. A failing step aborts with its error.
func prepareSession(path string, lf *loadFlags, dtypes, steps []string) (*session.Session, error) {
	opt, err := lf.options()
	if err != nil {
		return nil, err
	}
	sess := session.New()
	t, err := sess.Open(session.Source{Name: filepath.Base(path), Path: path, Options: opt})
	if err != nil {
		return nil, err
	}
	okf("Loaded %s (%d rows, %d columns)", filepath.Base(path), t.NumRows(), t.NumCols())

	if len(dtypes) > 0 {
		_, err := sess.Update(func(t *table.Table) (*table.Table, error) {
			next := t.Clone()
			return next, applyDtypeFlags(next, dtypes)
		})
		if err != nil {
			return nil, err
		}
	}
	for _, step := range steps {
		col, st, err := parseCleanStep(step)
		if err != nil {
			return nil, err
		}
		before := 0
		next, err := sess.Update(func(t *table.Table) (*table.Table, error) {
			before = t.NumRows()
			return clean.Apply(t, col, st)
		})
		if err != nil {
			return nil, fmt.Errorf("clean %s: %w", step, err)
		}
		switch {
		case st == clean.DropAll || st == clean.DropRows:
			okf("%s: dropped %d rows", st, before-next.NumRows())
		default:
			okf("%s: filled gaps in column %s", st, col)
		}
	}
	return sess, nil
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	clnLoad.bind(cleanCmd)
	cleanCmd.Flags().StringVar(&clnColumn, "column", "", "column to clean (not needed for drop-all)")
	cleanCmd.Flags().StringVar(&clnStrategy, "strategy", "", "drop-all|drop-rows|ffill|bfill|mean|mode")
	cleanCmd.Flags().StringArrayVar(&clnSteps, "step", nil, "cleaning step column:strategy, applied in order (repeatable)")
	cleanCmd.Flags().StringArrayVar(&clnDtypes, "dtype", nil, "change a column dtype first: col=int64|float64|object (repeatable)")
	cleanCmd.Flags().StringVarP(&clnOutputPath, "output", "o", "", "output CSV path (default <output_dir>/transformed_data.csv)")
}
