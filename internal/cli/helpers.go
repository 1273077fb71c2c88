package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/example/ambiguity-runner/internal/logger"
)

func ensureOutputDir(path string) error {
	if path == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	return os.MkdirAll(path, 0o755)
}

// terminalOrNil returns w when it is an interactive terminal.
func terminalOrNil(w io.Writer) io.Writer {
	if logger.IsTerminal(w) {
		return w
	}
	return nil
}
