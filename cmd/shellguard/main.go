// shellguard: policy-gated shell command execution for AI agents.
// Commands run under a layered allow/block policy with directory
// containment, timeout bounds, and a hash-chained audit log.
package main

import (
	"github.com/ppiankov/shellguard/internal/cli"
)

func main() {
	cli.Execute()
}
