package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/bundle"
	"github.com/solatis/qualify/internal/resources"
)

// sourceFlags select where resources come from: declaration files built
// against the configured system, or a bundle carrying its own.
type sourceFlags struct {
	files      []string
	bundlePath string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&s.files, "file", "f", nil, "resource declaration file (YAML or JSON), repeatable")
	cmd.Flags().StringVar(&s.bundlePath, "bundle", "", "bundle JSON file")
}

func (s *sourceFlags) set() bool {
	return len(s.files) > 0 || s.bundlePath != ""
}

// manager builds the resource manager for the selected source.
func (s *sourceFlags) manager(a *app) (*resources.Manager, error) {
	switch {
	case len(s.files) > 0 && s.bundlePath != "":
		return nil, fmt.Errorf("--file and --bundle are exclusive")
	case s.bundlePath != "":
		data, err := readInput(s.bundlePath)
		if err != nil {
			return nil, err
		}
		b, err := bundle.Load(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.bundlePath, err)
		}
		return bundle.Manager(b)
	case len(s.files) > 0:
		m, err := resources.NewManager(a.cfg.System)
		if err != nil {
			return nil, err
		}
		for _, path := range s.files {
			if err := m.LoadFile(path); err != nil {
				return nil, err
			}
		}
		a.logger.Debug("resources loaded", "files", len(s.files), "resources", m.NumResources())
		return m, nil
	default:
		return nil, fmt.Errorf("one of --file or --bundle required")
	}
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or to w for "" and "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
