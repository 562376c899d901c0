package codex

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

// Entry names the Codex CLI is launched under across platforms.
var codexEntryNames = map[string]bool{
	"codex":     true,
	"codex.exe": true,
	"codex.cmd": true,
	"codex.ps1": true,
	"codex.bat": true,
}

// ProcessInfo is the subset of process attributes classification needs.
type ProcessInfo struct {
	Name    string
	Exe     string
	Cmdline []string
}

// normalizeProcName trims, unquotes, reduces to the basename and lowercases.
func normalizeProcName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, `"'`)
	name = filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	return strings.ToLower(name)
}

// IsCodexProcess classifies one process. A process counts as a CLI instance
// iff it is not this app itself and any of its first command-line token,
// executable basename or process name matches a known entry name.
func IsCodexProcess(p ProcessInfo, selfNames []string) bool {
	name := normalizeProcName(p.Name)
	if strings.Contains(name, "codex-switch") || strings.Contains(name, "codex_switch") {
		return false
	}
	for _, self := range selfNames {
		if self != "" && name == normalizeProcName(self) {
			return false
		}
	}

	candidates := []string{name}
	if len(p.Cmdline) > 0 {
		candidates = append(candidates, normalizeProcName(p.Cmdline[0]))
	}
	if p.Exe != "" {
		candidates = append(candidates, normalizeProcName(p.Exe))
	}
	for _, candidate := range candidates {
		if codexEntryNames[candidate] {
			return true
		}
	}
	return false
}

func selfExecutableNames() []string {
	var names []string
	if exe, err := os.Executable(); err == nil {
		names = append(names, filepath.Base(exe))
	}
	return names
}

func listCodexProcesses() []*process.Process {
	all, err := process.Processes()
	if err != nil {
		return nil
	}
	self := selfExecutableNames()
	var matched []*process.Process
	for _, p := range all {
		info := ProcessInfo{}
		info.Name, _ = p.Name()
		info.Exe, _ = p.Exe()
		info.Cmdline, _ = p.CmdlineSlice()
		if IsCodexProcess(info, self) {
			matched = append(matched, p)
		}
	}
	return matched
}

// CountCodexProcesses returns the number of running CLI instances.
func CountCodexProcesses() int {
	return len(listCodexProcesses())
}

// KillCodexProcesses force-terminates every CLI instance and returns the
// count actually signalled.
func KillCodexProcesses() int {
	killed := 0
	for _, p := range listCodexProcesses() {
		if err := p.Kill(); err == nil {
			killed++
		}
	}
	return killed
}

// RestartCodex spawns a detached CLI instance, fire-and-forget.
func RestartCodex() error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", "start", "", "codex")
	} else {
		cmd = exec.Command("sh", "-lc", "codex >/dev/null 2>&1 &")
	}
	if err := cmd.Start(); err != nil {
		return apperrors.Wrap(apperrors.SubprocessSpawnError, "restarting codex", err)
	}
	return cmd.Process.Release()
}
