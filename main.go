package main

import (
	"fmt"
	"os"

	"github.com/schauderb/gitlab-to-github-full-org-migration/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
)

// main executes the org-migrate command-line application.
func main() {
	if executionError := cli.Execute(); executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(1)
	}
}
