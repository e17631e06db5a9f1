package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/gradecast/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change forecasting and server settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every setting after defaults, file and GRADECAST_* env are merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		tw := tablewriter.NewWriter(os.Stdout)
		tw.SetHeader([]string{"Key", "Value"})
		for _, key := range cfgpkg.Keys() {
			val, err := c.Get(key)
			if err != nil {
				return err
			}
			tw.Append([]string{key, val})
		}
		tw.Render()
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Validate one setting and write the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := settings()
		if err != nil {
			return err
		}
		prev, err := c.Get(key)
		if err != nil {
			return err
		}
		if err := c.Set(key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		okf("%s: %s -> %s", key, prev, val)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
