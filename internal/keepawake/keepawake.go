package keepawake

import (
	"context"
	"os"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// GuardEnv is set in the child so that it does not wrap itself again.
const GuardEnv = "BEAUTY_KEEP_AWAKE"

// Active reports whether this process already runs under the wrapper.
func Active() bool { return os.Getenv(GuardEnv) == "1" }

// Wrap prefixes argv with the sleep inhibitor of goos. The second result is
// false when goos has no known inhibitor and argv is returned unchanged.
func Wrap(goos string, argv []string) ([]string, bool) {
	var prefix []string
	switch goos {
	case "darwin":
		// display, idle, disk and system sleep
		prefix = []string{"caffeinate", "-dims"}
	case "linux":
		prefix = []string{"systemd-inhibit", "--what=idle:sleep", "--who=beauty-train", "--why=model training in progress"}
	default:
		return argv, false
	}
	return append(prefix, argv...), true
}

// Run executes argv under the inhibitor of the current OS and waits for it.
// A missing inhibitor binary degrades to running argv directly.
func Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return xerrors.New("empty command")
	}
	cmdline, ok := Wrap(runtime.GOOS, argv)
	if ok {
		if _, err := exec.LookPath(cmdline[0]); err != nil {
			log.WithField("inhibitor", cmdline[0]).Warn("Sleep inhibitor not found, running without it")
			cmdline = argv
		}
	}
	log.WithField("command", cmdline).Info("Running with sleep prevention")

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), GuardEnv+"=1")
	if err := cmd.Run(); err != nil {
		return xerrors.Errorf("%s: %w", cmdline[0], err)
	}
	return nil
}
