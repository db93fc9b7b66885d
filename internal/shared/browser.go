package shared

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

// OpenURL hands target to the system's default handler (browser or media player).
//
// Supports macOS, Linux, and Windows platforms. Only http(s) and file URLs are accepted.
func OpenURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q", ErrInvalidArgument, target)
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		return fmt.Errorf("%w: refusing to open %q", ErrInvalidArgument, target)
	}

	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}

	return nil
}
