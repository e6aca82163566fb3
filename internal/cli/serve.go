// ABOUTME: Serve command for HTTP webhook server mode
// ABOUTME: Prints the configured address and returns an error; no HTTP server is started

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	serverPort   int
	serverHost   string
	filterConfig string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP server mode for webhook-triggered workflows (no server is started)",
	Long: `Print the configured host and port (and the filter config path, if
one is given), then exit with an error.

No HTTP server is started: no port is bound, no request is handled, and
the --filter-config file is not read. The webhook handlers in
internal/server are not started by this command.

Examples:
  ritual serve --port 8080
  ritual serve --host 0.0.0.0 --port 9000
  ritual serve --filter-config webhooks.yaml
  ritual serve --port 8080 --verbose`,
	RunE: startServer,
}

func startServer(cmd *cobra.Command, args []string) error {
	// TODO: Implement HTTP server
	fmt.Printf("Starting HTTP server on %s:%d\n", serverHost, serverPort)
	if filterConfig != "" {
		fmt.Printf("Using filter config: %s\n", filterConfig)
	}

	return fmt.Errorf("HTTP server not yet implemented")
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "HTTP server port")
	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "HTTP server host")
	serveCmd.Flags().StringVar(&filterConfig, "filter-config", "", "path to filter configuration file")
}
