package policy

// DefaultAllowed are the commands permitted without an override.
// Read-only inspection tools only.
var DefaultAllowed = []string{
	"ls", "cat", "head", "tail", "grep", "find",
	"echo", "pwd", "whoami", "date", "wc", "sort",
	"uniq", "stat", "file", "du", "df", "env",
	"ps", "which", "uname",
}

// DefaultBlocked are the commands denied without an override:
// destructive filesystem operations, privilege escalation, process
// control, and network fetchers.
var DefaultBlocked = []string{
	"rm", "rmdir", "mv", "dd", "mkfs", "fdisk",
	"chmod", "chown", "sudo", "su", "kill", "killall",
	"shutdown", "reboot", "passwd", "useradd", "userdel",
	"curl", "wget",
}

// Dangerous lists commands that trigger a warning when explicitly
// allowed. The warning never refuses the operation.
var Dangerous = []string{
	"rm", "rmdir", "mv", "dd", "mkfs", "fdisk",
	"chmod", "chown", "sudo", "su", "kill", "killall",
	"shutdown", "reboot", "passwd",
}

var (
	defaultAllowedSet = toSet(DefaultAllowed)
	defaultBlockedSet = toSet(DefaultBlocked)
	dangerousSet      = toSet(Dangerous)
)

// IsDangerous reports whether allowing cmd deserves a warning.
func IsDangerous(cmd string) bool {
	return dangerousSet[cmd]
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}
