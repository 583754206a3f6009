package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/keystore/badgerstore"
)

var errNoDatabase = errors.New("--db is required for this command")

// rootOptions are the persistent flags shared by all commands.
type rootOptions struct {
	dbPath   string
	now      uint32
	logLevel string

	loggerFactory logging.LoggerFactory
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "weave-keytool",
		Short:        "Weave group key, passcode and handshake tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(opts.logLevel)
			if err != nil {
				return err
			}
			f := logging.NewDefaultLoggerFactory()
			f.DefaultLogLevel = level
			f.Writer = cmd.ErrOrStderr()
			opts.loggerFactory = f
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "badger key database directory")
	root.PersistentFlags().Uint32Var(&opts.now, "now", 0, "fixed UTC time in seconds for epoch selection (default: system clock)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: disabled, error, warn, info, debug, trace")

	root.AddCommand(keystoreCmd(opts), passcodeCmd(opts), loopbackCmd(opts))
	return root
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
}

// openStore opens the key database named by --db. The returned function
// closes it.
func (o *rootOptions) openStore() (*keystore.Store, func() error, error) {
	if o.dbPath == "" {
		return nil, nil, errNoDatabase
	}
	var clock keystore.Clock
	if o.now != 0 {
		clock = keystore.FixedClock(o.now)
	}
	b, err := badgerstore.Open(badgerstore.Config{
		Path:          o.dbPath,
		Clock:         clock,
		LoggerFactory: o.loggerFactory,
	})
	if err != nil {
		return nil, nil, err
	}
	s, err := keystore.NewStore(keystore.Config{Backend: b, LoggerFactory: o.loggerFactory})
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return s, b.Close, nil
}

// keyIDNames are the key ids accepted by name.
var keyIDNames = map[string]keystore.KeyID{
	"fabric-secret": keystore.FabricSecret,
	"fabric-root":   keystore.FabricRootKey,
	"client-root":   keystore.ClientRootKey,
	"service-root":  keystore.ServiceRootKey,
	"current-epoch": keystore.CurrentEpochKey,
}

// parseKeyID accepts a well-known name or a number in any Go integer
// syntax, e.g. 0x20080.
func parseKeyID(s string) (keystore.KeyID, error) {
	if id, ok := keyIDNames[strings.ToLower(s)]; ok {
		return id, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return keystore.KeyIDNone, fmt.Errorf("invalid key id %q", s)
	}
	id := keystore.KeyID(v)
	if !id.IsValid() {
		return keystore.KeyIDNone, fmt.Errorf("%w: %s", keystore.ErrInvalidKeyID, id)
	}
	return id, nil
}

func parseHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return b, nil
}
