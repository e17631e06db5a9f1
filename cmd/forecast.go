package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/gradecast/internal/forecast"
	"github.com/KaramelBytes/gradecast/internal/utils"
)

// Artifact file names written by forecast.
const (
	recommendationsFile = "recommendations.txt"
	predictionsFile     = "student_predictions.csv"
)

var (
	fcLoad      loadFlags
	fcTarget    string
	fcThreshold float64
	fcDtypes    []string
	fcSteps     []string
	fcOutDir    string
	fcJSON      bool
	fcTop       int
)

var forecastCmd = &cobra.Command{
	Use:   "forecast <file>",
	Short: "Forecast final scores, assign risk groups and write recommendations",
	Long: `Fit bagged regression and classification trees on the table, forecast every
student's score on a 0-100 scale and sort students into risk groups:
below 65 is the risk zone, 65 to 80 the elevated-risk zone, 80 and above the
well-being zone. The threshold (3.5-5.0) sets the honours cutoff at threshold x 20.

Writes recommendations.txt and student_predictions.csv to --out-dir.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		threshold := c.DefaultThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = fcThreshold
		}
		outDir := fcOutDir
		if outDir == "" {
			outDir = c.OutputDir
		}

		sess, err := prepareSession(args[0], &fcLoad, fcDtypes, fcSteps)
		if err != nil {
			return err
		}
		logger := newLogger(c)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		res, err := sess.Forecast(ctx, newPipeline(c, logger), forecast.Request{Target: fcTarget, Threshold: threshold})
		if err != nil {
			return err
		}

		recPath := filepath.Join(outDir, recommendationsFile)
		if err := utils.SafeWriteFile(recPath, []byte(res.RecommendationsText())); err != nil {
			return err
		}
		csvData, err := res.CSV()
		if err != nil {
			return err
		}
		csvPath := filepath.Join(outDir, predictionsFile)
		if err := utils.SafeWriteFile(csvPath, csvData); err != nil {
			return err
		}

		if fcJSON {
			b, err := utils.PrettyJSON(forecastSummary(res))
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		} else {
			printForecast(res, fcTop)
		}
		okf("Wrote %s", recPath)
		okf("Wrote %s", csvPath)
		return nil
	},
}

type summaryJSON struct {
	Target           string         `json:"target"`
	Threshold        float64        `json:"threshold"`
	Cutoff           float64        `json:"cutoff"`
	RMSE             float64        `json:"rmse"`
	Accuracy         float64        `json:"accuracy"`
	TopHonorsPercent float64        `json:"top_honors_percent"`
	GroupCounts      map[string]int `json:"group_counts"`
	TrainRows        int            `json:"train_rows"`
	TestRows         int            `json:"test_rows"`
	Warnings         []string       `json:"warnings"`
}

func forecastSummary(res *forecast.Result) summaryJSON {
	out := summaryJSON{
		Target:           res.Target,
		Threshold:        res.Threshold,
		Cutoff:           res.Cutoff,
		RMSE:             res.RMSE,
		Accuracy:         res.Accuracy,
		TopHonorsPercent: res.TopHonorsPercent,
		GroupCounts:      map[string]int{},
		TrainRows:        res.TrainRows,
		TestRows:         res.TestRows,
		Warnings:         res.Warnings,
	}
	for g, n := range res.GroupCounts() {
		out.GroupCounts[g.String()] = n
	}
	return out
}

var groupPrinters = map[forecast.Group]func(format string, a ...any) string{
	forecast.RiskZone:         color.RedString,
	forecast.ElevatedRiskZone: color.YellowString,
	forecast.WellBeingZone:    color.GreenString,
}

func printForecast(res *forecast.Result, top int) {
	color.Cyan("Forecast for %s (threshold %.2f, cutoff %.0f)", res.Target, res.Threshold, res.Cutoff)
	fmt.Printf("RMSE (holdout):      %.3f\n", res.RMSE)
	fmt.Printf("Accuracy (holdout):  %.1f%%\n", res.Accuracy*100)
	fmt.Printf("At or above cutoff:  %.1f%% of students\n\n", res.TopHonorsPercent)

	counts := res.GroupCounts()
	gt := tablewriter.NewWriter(os.Stdout)
	gt.SetHeader([]string{"Group", "Students", "Recommendations"})
	for _, g := range forecast.ReportOrder {
		gt.Append([]string{groupPrinters[g]("%s", g.Label()), strconv.Itoa(counts[g]), g.Recommendation()})
	}
	gt.Render()

	ranked := res.Ranked()
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}
	if len(ranked) > 0 {
		fmt.Println()
		color.Yellow("Forecast detail")
		dt := tablewriter.NewWriter(os.Stdout)
		dt.SetHeader([]string{"Row", res.Target, "Forecast", "Group"})
		for _, r := range ranked {
			dt.Append([]string{
				strconv.Itoa(r.Row + 1),
				r.Target,
				fmt.Sprintf("%.1f", r.Forecast),
				groupPrinters[r.Group]("%s", r.Group.Label()),
			})
		}
		dt.Render()
	}
	for _, w := range res.Warnings {
		warnf("%s", w)
	}
}

func init() {
	rootCmd.AddCommand(forecastCmd)
	fcLoad.bind(forecastCmd)
	forecastCmd.Flags().StringVarP(&fcTarget, "target", "t", "", "numeric target column (required)")
	forecastCmd.Flags().Float64Var(&fcThreshold, "threshold", 4.75, "diploma threshold on the 3.5-5.0 scale (default from config)")
	forecastCmd.Flags().StringArrayVar(&fcDtypes, "dtype", nil, "change a column dtype first: col=int64|float64|object (repeatable)")
	forecastCmd.Flags().StringArrayVar(&fcSteps, "clean", nil, "cleaning step column:strategy before forecasting (repeatable)")
	forecastCmd.Flags().StringVar(&fcOutDir, "out-dir", "", "directory for artifacts (default from config output_dir)")
	forecastCmd.Flags().BoolVar(&fcJSON, "json", false, "print the summary as JSON")
	forecastCmd.Flags().IntVar(&fcTop, "top", 15, "rows shown in the detail table (0 = all)")
	_ = forecastCmd.MarkFlagRequired("target")
}
