package loaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Exec runs external compiler bin feeding input through stdin and returns
// its standard output. Absent executable is reported as missing dependency
// named pkg.
func Exec(ctx context.Context, pkg, bin string, args []string, dir, input string) (string, error) {
	file, err := exec.LookPath(bin)
	if err != nil {
		return "", MissingDependency(pkg, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, file, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("unable to start %s: %w", bin, err)
	}

	_, err = Await(ctx, func(done func(struct{}, error)) {
		go func() { done(struct{}{}, cmd.Wait()) }()
	})
	if err != nil {
		var ee *exec.ExitError
		if msg := strings.TrimSpace(stderr.String()); errors.As(err, &ee) && len(msg) > 0 {
			return "", fmt.Errorf("%s failed: %s", pkg, msg)
		}
		return "", fmt.Errorf("%s failed: %w", pkg, err)
	}
	return stdout.String(), nil
}
