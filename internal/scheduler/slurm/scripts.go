package slurm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// writeScript materializes a rendered submission script for a single PU and
// returns its path.
func writeScript(workDir string, pu core.ProcessingUnit, script string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating scheduler work directory")
	}

	name := fmt.Sprintf("submit-%s-%s.sh", sanitize(pu.Key()), uuid.NewString()[:8])
	path := filepath.Join(workDir, name)

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// writeArrayScript materializes a single array-job script. The script
// templates $SLURM_ARRAY_TASK_ID against the caller-supplied per-task
// rendering; here we only need the shared script body since per-task
// substitution happens via environment variables the wrapper script reads,
// not per-task file generation (§6: the template is opaque, the array
// index is a scheduler-native placeholder).
func writeArrayScript(workDir string, pus []core.ProcessingUnit, script string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating scheduler work directory")
	}

	name := fmt.Sprintf("submit-array-%s.sh", uuid.NewString()[:8])
	path := filepath.Join(workDir, name)

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
