package process

import "golang.org/x/sys/unix"

// waitExited blocks until pid has exited without reaping it. The PID stays
// reserved as a zombie until exec.Cmd.Wait collects it.
func waitExited(pid int) bool {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return err == nil
		}
	}
}
