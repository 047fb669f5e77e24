package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mend/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "Interactive expectation reconciliation for Go tests",
	Long:  `mend runs test suites, reviews changed expectations with you, and rewrites the call sites you accept.`,
}

func main() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	cobra.OnInitialize(func() {
		mode, _ := rootCmd.PersistentFlags().GetString("color")
		switch mode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		default:
			color.NoColor = !isTerminal(os.Stdout)
		}
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
