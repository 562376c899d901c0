package codex

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

const (
	loginPollInterval = 500 * time.Millisecond

	// Post-login auth file poll.
	loginAuthPollMaxAttempts = 8
	loginAuthPollInterval    = 500 * time.Millisecond

	stderrCaptureLimit = 400
)

// LaunchSpec names one way to invoke the CLI.
type LaunchSpec struct {
	Program    string
	PrefixArgs []string
	Display    string
}

func (s LaunchSpec) key() string {
	return s.Program + "\x00" + strings.Join(s.PrefixArgs, "\x00")
}

// loginCandidates builds the ordered, deduplicated list of launch specs for
// the current platform. On non-Windows the plain `codex` launcher is the
// only one; Windows needs shims, PATH scans, PowerShell scripts and bundled
// vendor fallbacks.
func loginCandidates() []LaunchSpec {
	if runtime.GOOS != "windows" {
		return []LaunchSpec{{Program: "codex", Display: "codex"}}
	}
	return dedupeSpecs(windowsLoginCandidates())
}

func windowsLoginCandidates() []LaunchSpec {
	var specs []LaunchSpec
	for _, name := range []string{"codex.cmd", "codex.exe", "codex"} {
		specs = append(specs, LaunchSpec{Program: name, Display: name})
	}

	pathDirs := filepath.SplitList(os.Getenv("PATH"))
	for _, name := range []string{"codex.cmd", "codex.exe", "codex.bat"} {
		for _, dir := range pathDirs {
			full := filepath.Join(dir, name)
			if _, err := os.Stat(full); err == nil {
				specs = append(specs, LaunchSpec{Program: full, Display: full})
			}
		}
	}

	for _, dir := range pathDirs {
		script := filepath.Join(dir, "codex.ps1")
		if _, err := os.Stat(script); err == nil {
			specs = append(specs, LaunchSpec{
				Program:    "powershell",
				PrefixArgs: []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-File", script},
				Display:    "powershell -File " + script,
			})
		}
	}

	for _, base := range vendorSearchRoots() {
		for _, name := range []string{"codex.cmd", "codex.exe"} {
			full := filepath.Join(base, "vendor", "codex", name)
			if _, err := os.Stat(full); err == nil {
				specs = append(specs, LaunchSpec{Program: full, Display: full})
			}
		}
	}
	return specs
}

func vendorSearchRoots() []string {
	var roots []string
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	return roots
}

func dedupeSpecs(specs []LaunchSpec) []LaunchSpec {
	seen := make(map[string]bool, len(specs))
	out := specs[:0]
	for _, spec := range specs {
		if seen[spec.key()] {
			continue
		}
		seen[spec.key()] = true
		out = append(out, spec)
	}
	return out
}

// IsWebLoginUnsupported reports whether stderr output indicates the
// installed CLI does not know the --web flag.
func IsWebLoginUnsupported(message string) bool {
	lower := strings.ToLower(message)
	if !strings.Contains(lower, "--web") {
		return false
	}
	for _, marker := range []string{
		"unexpected argument",
		"wasn't expected",
		"unknown option",
		"unrecognized option",
		"no such option",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RunLogin drives an interactive `codex login`, preferring the --web flow
// and falling back to the plain subcommand when the flag is unsupported.
func RunLogin(timeout time.Duration) error {
	webErr := runLoginArgs([]string{"login", "--web"}, timeout)
	if webErr == nil {
		return nil
	}
	if !IsWebLoginUnsupported(webErr.Error()) {
		return webErr
	}
	if fallbackErr := runLoginArgs([]string{"login"}, timeout); fallbackErr != nil {
		return apperrors.Wrap(apperrors.SubprocessSpawnError,
			"codex login --web is unsupported by this CLI and the plain login also failed", fallbackErr)
	}
	return nil
}

// runLoginArgs walks the candidate launch specs until one succeeds. All
// failures are joined into a single diagnostic.
func runLoginArgs(args []string, timeout time.Duration) error {
	var attempts []string
	for _, spec := range loginCandidates() {
		err := runLoginAttempt(spec, args, timeout)
		if err == nil {
			return nil
		}
		attempts = append(attempts, fmt.Sprintf("%s %s: %v", spec.Display, strings.Join(args, " "), err))
	}
	if len(attempts) == 0 {
		return apperrors.New(apperrors.SubprocessSpawnError, "no codex launcher available")
	}
	return apperrors.Newf(apperrors.SubprocessSpawnError, "all codex launchers failed: %s", strings.Join(attempts, "; "))
}

func runLoginAttempt(spec LaunchSpec, args []string, timeout time.Duration) error {
	cmd := exec.Command(spec.Program, append(append([]string{}, spec.PrefixArgs...), args...)...)
	cmd.Stdout = nil
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return apperrors.Wrap(apperrors.SubprocessSpawnError, "spawning codex login", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.Now().Add(timeout)
	for {
		select {
		case waitErr := <-done:
			if waitErr == nil {
				return nil
			}
			output := flattenStderr(stderr.String())
			if output == "" {
				return fmt.Errorf("exited unsuccessfully: %v", waitErr)
			}
			return fmt.Errorf("exited unsuccessfully: %v (%s)", waitErr, output)
		case <-time.After(loginPollInterval):
			if time.Now().After(deadline) {
				_ = cmd.Process.Kill()
				<-done
				return apperrors.Newf(apperrors.LoginTimeout,
					"codex login did not finish within %s, complete the browser authorization and retry", timeout)
			}
		}
	}
}

// flattenStderr collapses newlines and truncates for error messages.
func flattenStderr(text string) string {
	cleaned := strings.ReplaceAll(text, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.TrimSpace(cleaned)
	runes := []rune(cleaned)
	if len(runes) <= stderrCaptureLimit {
		return cleaned
	}
	return string(runes[:stderrCaptureLimit]) + "..."
}

// WaitForUpdatedAuthFile polls the auth file after a login until its content
// differs from previousText (when given) and validates. The CLI may flush
// the file a moment after the subprocess exits.
func WaitForUpdatedAuthFile(previousText *string) (*AuthJSON, error) {
	authPath, err := AuthPath()
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < loginAuthPollMaxAttempts; attempt++ {
		if text, err := os.ReadFile(authPath); err == nil {
			updated := previousText == nil || *previousText != string(text)
			if updated {
				if auth, err := ValidateAuthJSON(string(text)); err == nil {
					return auth, nil
				}
			}
		}
		time.Sleep(loginAuthPollInterval)
	}
	return nil, apperrors.New(apperrors.LoginPostPollTimeout,
		"login finished but the auth file was not updated in time")
}
