// Package chooser implements the ScreenCast target chooser (spec
// §4.E "Target selection"): the four chooser modes and the external
// helper spawning discipline shared by all of them.
package chooser

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/config"
	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
)

// exitNotFound is the shell's exit code for "command not found" (spec
// §4.E "If wait reports exit code 127, try the next candidate").
const exitNotFound = 127

// Output is the minimal view of an enumerated compositor output the
// chooser needs; populated by the caller from waylandres.Output.
type Output struct {
	Name   string
	Width  int32
	Height int32
}

// Choose selects a target output name according to the configured
// chooser mode (spec §4.E "Target selection"). outputs must be
// non-empty.
func Choose(cfg *config.ScreencastConfig, outputs []Output) (string, error) {
	if len(outputs) == 0 {
		return "", fmt.Errorf("chooser: no outputs enumerated")
	}

	switch cfg.ChooserType {
	case config.ChooserNone:
		return chooseNone(cfg, outputs), nil
	case config.ChooserDmenu:
		return chooseDmenu(cfg, outputs)
	case config.ChooserSimple:
		return chooseSimple(cfg, outputs)
	default:
		return chooseDefault(cfg, outputs)
	}
}

// chooseNone uses the configured output_name, falling back to the
// first enumerated output.
func chooseNone(cfg *config.ScreencastConfig, outputs []Output) string {
	if cfg.OutputName != "" {
		for _, o := range outputs {
			if o.Name == cfg.OutputName {
				return o.Name
			}
		}
	}
	return outputs[0].Name
}

// chooseDefault cascades through a known list of menu helpers before
// falling back to the first enumerated output (spec §4.E "default").
func chooseDefault(cfg *config.ScreencastConfig, outputs []Output) (string, error) {
	candidates := []string{"wofi --dmenu", "bemenu", "dmenu"}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}

	for _, cmd := range candidates {
		out, err := runHelper(cmd, strings.Join(names, "\n")+"\n")
		if err == errNotFound {
			continue
		}
		if err != nil {
			logger.Warnf("chooser: default candidate %q failed: %v", cmd, err)
			continue
		}
		if out != "" {
			return out, nil
		}
	}
	return outputs[0].Name, nil
}

// chooseSimple invokes a single external command in geometry-picker
// mode (spec §4.E "simple").
func chooseSimple(cfg *config.ScreencastConfig, outputs []Output) (string, error) {
	if cfg.ChooserCmd == "" {
		return "", fmt.Errorf("chooser: chooser_type=simple requires chooser_cmd")
	}
	out, err := runHelper(cfg.ChooserCmd, "")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("chooser: simple helper produced no output")
	}
	return out, nil
}

// chooseDmenu pipes output names to an external menu command and reads
// back the selected name (spec §4.E "dmenu").
func chooseDmenu(cfg *config.ScreencastConfig, outputs []Output) (string, error) {
	if cfg.ChooserCmd == "" {
		return "", fmt.Errorf("chooser: chooser_type=dmenu requires chooser_cmd")
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	out, err := runHelper(cfg.ChooserCmd, strings.Join(names, "\n")+"\n")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("chooser: dmenu helper produced no output")
	}
	return out, nil
}

var errNotFound = fmt.Errorf("chooser: helper exited 127 (not found)")

// runHelper spawns cmd via `/bin/sh -c`, feeding stdin and reading
// exactly one newline-terminated line from stdout (spec §4.E "Spawning
// discipline"). The parent never blocks indefinitely: the helper's
// exit is the synchronization point.
func runHelper(cmd string, stdin string) (string, error) {
	c := exec.Command("/bin/sh", "-c", cmd)
	if stdin != "" {
		c.Stdin = strings.NewReader(stdin)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("chooser: stdout pipe: %w", err)
	}
	if err := c.Start(); err != nil {
		return "", fmt.Errorf("chooser: start %q: %w", cmd, err)
	}

	line, _ := bufio.NewReader(stdout).ReadString('\n')

	err = c.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() == exitNotFound {
			return "", errNotFound
		}
		return "", fmt.Errorf("chooser: %q exited %d", cmd, exitErr.ExitCode())
	}
	if err != nil {
		return "", fmt.Errorf("chooser: wait %q: %w", cmd, err)
	}

	return strings.TrimSuffix(line, "\n"), nil
}
