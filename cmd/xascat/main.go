// Catalog server for X-ray absorption spectroscopy measurements
// Serves a searchable metadata hierarchy with payload storage
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "xascat",
	Short: "Measurement catalog server",
	Long: `xascat serves a catalog of spectroscopy measurements: a document
store of validated metadata records, a blob store for their payloads,
and a browsable virtual hierarchy over both.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
