package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/gradecast/internal/loader"
)

var samplesDir string

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "List preset data files in the sample directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := samplesDir
		if dir == "" {
			c, err := settings()
			if err != nil {
				return err
			}
			dir = c.SampleDir
		}
		samples, err := loader.DiscoverSamples(dir)
		if err != nil {
			return err
		}
		if len(samples) == 0 {
			warnf("no data files found in %s", dir)
			return nil
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Name", "Size", "Path"})
		for _, s := range samples {
			tw.Append([]string{s.Name, strconv.FormatInt(s.Size, 10), s.Path})
		}
		tw.Render()
		fmt.Printf("%d file(s)\n", len(samples))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(samplesCmd)
	samplesCmd.Flags().StringVar(&samplesDir, "dir", "", "sample directory (default from config sample_dir)")
}
