package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"mend/internal/project"
)

var (
	testMode       string
	testUpdate     bool
	testRunPattern string
	testVerbose    bool
)

func init() {
	testCmd.Flags().StringVar(&testMode, "mode", "", "review mode (auto|interactive|accept|reject|skip)")
	testCmd.Flags().BoolVarP(&testUpdate, "update", "u", false, "force reconciliation of already-recorded expectations")
	testCmd.Flags().StringVar(&testRunPattern, "run", "", "run only tests matching the pattern (go test -run)")
	testCmd.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "verbose test output (go test -v)")
}

var testCmd = &cobra.Command{
	Use:   "test [packages]",
	Short: "Run go test with reconciliation enabled",
	Long: `Runs go test for the given packages (./... when omitted) with the
reconciliation environment prepared. Interactive review happens inside the
test process, so the terminal is handed through untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if testMode != "" {
			if _, err := project.ParseMode(testMode); err != nil {
				return err
			}
		}

		goArgs := []string{"test"}
		if testVerbose {
			goArgs = append(goArgs, "-v")
		}
		if testRunPattern != "" {
			goArgs = append(goArgs, "-run", testRunPattern)
		}
		if len(args) == 0 {
			goArgs = append(goArgs, "./...")
		} else {
			goArgs = append(goArgs, args...)
		}

		child := exec.Command("go", goArgs...)
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		child.Env = testEnv(os.Environ())

		err := child.Run()
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			// пробрасываем статус дочернего go test как есть
			os.Exit(exit.ExitCode())
		}
		if err != nil {
			return fmt.Errorf("go test: %w", err)
		}
		return nil
	},
}

// testEnv layers the command's flags onto the inherited environment as the
// overrides the library reads at startup.
func testEnv(base []string) []string {
	env := base
	if testMode != "" {
		env = append(env, "MEND_MODE="+testMode)
	}
	if testUpdate {
		env = append(env, "MEND_UPDATE=1")
	}
	if !isTerminal(os.Stdout) {
		env = append(env, "MEND_NOCOLOR=1")
	}
	return env
}
