// weave-keytool manages Weave group keys and exercises the key export and
// PASE engines.
//
// Usage:
//
//	weave-keytool [--db dir] [--now seconds] [--log-level level] <command>
//
// Commands:
//
//	keystore put|list|delete|show|derive   manage keys in a badger database
//	passcode encrypt|decrypt|inspect       encrypted passcode utility
//	loopback pase|key-export               run an exchange over an in-process pipe
//
// Example:
//
//	weave-keytool --db ./keys keystore put --id fabric-secret --secret 000102...
//	weave-keytool --db ./keys loopback key-export --id client-root --config 2
package main

import (
	"os"

	"github.com/backkem/weave/cmd/weave-keytool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
