// Package deviceselect implements the interactive device-selection seam of
// the Build Orchestrator (spec.md §4.7 stage 1). The orchestrator's stage 1
// calls a Prompter to resolve the device file name, so the pipeline blocks
// on stdin during that stage when no device was preselected; the prompting
// logic itself lives here, outside the orchestrator package.
package deviceselect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/etj-sad/kassia/internal/kasserr"
)

// Prompter resolves a device file name, either because it was already
// supplied (--device) or by asking the operator to choose one.
type Prompter interface {
	SelectDevice(deviceDir string, preselected string) (string, error)
}

// StdinPrompter lists every *.json under deviceDir and reads a numeric
// choice from In, writing the numbered menu to Out.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer
}

// NewStdinPrompter returns a Prompter reading os.Stdin and writing os.Stdout.
func NewStdinPrompter() *StdinPrompter {
	return &StdinPrompter{In: os.Stdin, Out: os.Stdout}
}

// SelectDevice returns preselected unchanged if non-empty; otherwise it
// enumerates deviceDir, prints a numbered menu, and reads one selection.
func (p *StdinPrompter) SelectDevice(deviceDir string, preselected string) (string, error) {
	if preselected != "" {
		return preselected, nil
	}

	entries, err := os.ReadDir(deviceDir)
	if err != nil {
		return "", fmt.Errorf("%w: listing device directory %s: %s", kasserr.ErrOperator, deviceDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		return "", fmt.Errorf("%w: no device profiles found under %s", kasserr.ErrOperator, deviceDir)
	}

	fmt.Fprintln(p.Out, "Select a device:")
	for i, n := range names {
		fmt.Fprintf(p.Out, "  %d) %s\n", i+1, n)
	}

	scanner := bufio.NewScanner(p.In)
	for {
		fmt.Fprint(p.Out, "> ")

		if !scanner.Scan() {
			return "", &kasserr.OperatorSelectionError{Input: ""}
		}
		input := strings.TrimSpace(scanner.Text())

		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(names) {
			fmt.Fprintf(p.Out, "invalid selection %q, try again\n", input)
			continue
		}

		return names[idx-1], nil
	}
}
