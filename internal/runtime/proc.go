package runtime

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// stopGrace is how long a child gets between SIGTERM and SIGKILL.
const stopGrace = 2 * time.Second

// terminate sends SIGTERM and kills the process if it has not exited within
// stopGrace. exited must be closed once the process has been reaped.
func terminate(cmd *exec.Cmd, exited <-chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-exited
	}
}

func expandArgs(args []string, userID, modelPath string) []string {
	out := make([]string, len(args))
	r := strings.NewReplacer("{user}", userID, "{model}", modelPath)
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, ErrDependencyUnavailable("no free port in range " + strconv.Itoa(start) + "-" + strconv.Itoa(end))
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// DiscoverLlamaBin looks for a llama-server binary in common install paths
// and then on PATH. It returns "" when none is found.
func DiscoverLlamaBin() string {
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, "apps", "llama.cpp", "build", "bin", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/homebrew/bin/llama-server",
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	return ""
}

// SanityReport describes whether an external runtime binary is usable.
type SanityReport struct {
	Backend string `json:"backend"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckBinary validates that bin names an existing regular file. An empty bin
// is looked up on PATH via name.
func CheckBinary(backend, bin, name string) SanityReport {
	r := SanityReport{Backend: backend}
	if bin == "" && name != "" {
		if lp, err := exec.LookPath(name); err == nil {
			bin = lp
		}
	}
	if bin == "" {
		r.Error = backend + " binary not found"
		return r
	}
	r.Path = bin
	fi, err := os.Stat(bin)
	switch {
	case err != nil:
		r.Error = err.Error()
	case fi.IsDir():
		r.Error = "binary path is a directory"
	default:
		r.Found = true
	}
	return r
}
