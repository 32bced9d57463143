package process

import (
	stderrors "errors"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Spawn failure reasons, attached to SPAWN_FAILED errors and metrics.
const (
	ReasonNotFound         = "not_found"
	ReasonPermissionDenied = "permission_denied"
	ReasonBadDirectory     = "bad_directory"
	ReasonPipe             = "pipe"
	ReasonOther            = "other"
)

// spawnReason classifies an exec start error.
func spawnReason(err error, dir string) string {
	switch {
	case stderrors.Is(err, exec.ErrNotFound):
		return ReasonNotFound
	case isPermission(err):
		return ReasonPermissionDenied
	case dir != "" && isBadDir(dir):
		return ReasonBadDirectory
	case stderrors.Is(err, fs.ErrNotExist):
		return ReasonNotFound
	default:
		return ReasonOther
	}
}

func isPermission(err error) bool {
	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		return stderrors.Is(pathErr.Err, os.ErrPermission) || stderrors.Is(pathErr.Err, unix.EACCES) || stderrors.Is(pathErr.Err, unix.EPERM)
	}
	var execErr *exec.Error
	if stderrors.As(err, &execErr) {
		return stderrors.Is(execErr.Err, os.ErrPermission) || stderrors.Is(execErr.Err, unix.EACCES) || stderrors.Is(execErr.Err, unix.EPERM)
	}
	return stderrors.Is(err, unix.EACCES) || stderrors.Is(err, unix.EPERM)
}

func isBadDir(dir string) bool {
	fi, err := os.Stat(dir)
	return err != nil || !fi.IsDir()
}

// exitStatus extracts the exit code and terminating signal.
func exitStatus(ps *os.ProcessState) (int, string) {
	if ps == nil {
		return ExitCodeUnknown, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitCodeUnknown, unix.SignalName(ws.Signal())
	}
	return ps.ExitCode(), ""
}

// signalTree delivers sig to the process and then to its process group, so
// helpers the installer forked are reached too. ESRCH and an already
// reaped leader are not errors.
func signalTree(p *os.Process, sig unix.Signal) error {
	var errs []error
	if err := p.Signal(sig); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		errs = append(errs, err)
	}
	if err := unix.Kill(-p.Pid, sig); err != nil && !stderrors.Is(err, unix.ESRCH) {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
