package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	terrors "github.com/vango-go/terminal/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦  ╦┌─┐┌┐┌┌─┐┌─┐  ┌┬┐┌─┐┬─┐┌┬┐
  ╚╗╔╝├─┤││││ ┬│ │   │ ├┤ ├┬┘│││
   ╚╝ ┴ ┴┘└┘└─┘└─┘   ┴ └─┘┴└─┴ ┴
`

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		terrors.PrintError(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "vango-terminal",
		Short: "Server-side UI terminal with UIDL and upload streaming",
		Long: `vango-terminal serves server-side component applications.

Browsers talk to the terminal through UIDL bursts over HTTP or a
WebSocket push channel, and stream file uploads straight into
server-side receivers. Features include:

  • Per-session applications with incremental repaints
  • Secure upload URLs bound to components
  • Memory, Redis or SQL session leases
  • Disk or S3 upload storage
  • Prometheus metrics and OpenTelemetry traces`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(flags.envFile)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file (default: vango-terminal.yaml in ., ~/.vango-terminal or /etc/vango-terminal)")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Load environment variables from this file (default: .env if present)")

	rootCmd.AddCommand(
		serveCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

// loadEnv loads a dotenv file. Without an explicit file, a missing .env is
// ignored. Variables already set in the environment are kept.
func loadEnv(file string) error {
	if file != "" {
		if err := godotenv.Load(file); err != nil {
			return terrors.New(terrors.CodeConfigLoad).
				WithDetail("Failed to load " + file).
				Wrap(err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return terrors.New(terrors.CodeConfigLoad).
			WithDetail("Failed to load .env").
			Wrap(err)
	}
	return nil
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
