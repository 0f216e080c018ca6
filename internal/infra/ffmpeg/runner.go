package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
)

// commandRunner is the seam between the provider and the external backend
// processes. Tests substitute it; production code always uses execRunner.
type commandRunner interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (execRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}
