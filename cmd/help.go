package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "Help about any command",
	Long: `Help shows the usage of a command. With --placeholders it lists the %(key)s
placeholders available to templates and their values for the current settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if placeholders, _ := cmd.Flags().GetBool("placeholders"); placeholders {
			return runHelpPlaceholders(cmd)
		}
		target, _, err := rootCmd.Find(args)
		if err != nil || target == nil {
			return fmt.Errorf("unknown help topic %v", args)
		}
		return target.Help()
	},
}

func init() {
	helpCmd.Flags().BoolP("placeholders", "p", false,
		"list the template placeholders and their values")

	rootCmd.SetHelpCommand(helpCmd)
}

// secretKeys are never printed.
var secretKeys = map[string]bool{
	"admin_pass":     true,
	"db_pass":        true,
	"secret_key":     true,
	"nevercache_key": true,
}

func runHelpPlaceholders(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	values := cfg.Values()
	values["db_pass"] = ""
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "Placeholder\tValue")
	for _, k := range keys {
		v := values[k]
		if secretKeys[k] {
			v = "(hidden)"
		}
		fmt.Fprintf(w, "%%(%s)s\t%s\n", k, v)
	}
	return w.Flush()
}
