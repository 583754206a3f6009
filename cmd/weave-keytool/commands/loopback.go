package commands

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/handshake"
	"github.com/backkem/weave/pkg/keyexport"
	"github.com/backkem/weave/pkg/pase"
	"github.com/backkem/weave/pkg/transport"
)

// runFactory returns a runner and a fresh pipe for one exchange.
type runFactory func() (*handshake.Runner, *transport.Pipe)

func loopbackCmd(opts *rootOptions) *cobra.Command {
	var timeout, delay time.Duration
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Run an exchange between two local engines over an in-process pipe",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", handshake.DefaultTimeout, "bound on the whole exchange")
	cmd.PersistentFlags().DurationVar(&delay, "delay", 0, "simulated one-way delay per message")

	newRun := func() (*handshake.Runner, *transport.Pipe) {
		pipe := transport.NewPipe()
		if delay > 0 {
			pipe.SetCondition(transport.NetworkCondition{DelayMin: delay, DelayMax: delay})
		}
		return handshake.New(handshake.Config{Timeout: timeout, LoggerFactory: opts.loggerFactory}), pipe
	}
	cmd.AddCommand(loopbackPASECmd(opts, newRun), loopbackKeyExportCmd(opts, newRun))
	return cmd
}

// paseConfigs maps config numbers 0-5 to PASE configs. An empty list means
// the default set.
func paseConfigs(nums []uint) (pase.ConfigSet, error) {
	var set pase.ConfigSet
	for _, n := range nums {
		c, err := paseConfig(int(n))
		if err != nil {
			return nil, err
		}
		set = append(set, c)
	}
	return set, nil
}

func paseConfig(n int) (pase.ProtocolConfig, error) {
	if n < 0 {
		return pase.ConfigUnspecified, nil
	}
	c := pase.Config0TestOnly + pase.ProtocolConfig(n)
	if c.SecurityStrength() == 0 {
		return pase.ConfigUnspecified, fmt.Errorf("unknown PASE config %d", n)
	}
	return c, nil
}

func loopbackPASECmd(opts *rootOptions, newRun runFactory) *cobra.Command {
	var (
		config            int
		password          string
		responderPassword string
		confirm           bool
		sessionKeyID      uint16
		initiatorNode     uint64
		responderNode     uint64
		initiatorConfigs  []uint
		responderConfigs  []uint
	)
	cmd := &cobra.Command{
		Use:   "pase",
		Short: "Establish a PASE session key",
		RunE: func(cmd *cobra.Command, args []string) error {
			proposed, err := paseConfig(config)
			if err != nil {
				return err
			}
			iAllowed, err := paseConfigs(initiatorConfigs)
			if err != nil {
				return err
			}
			rAllowed, err := paseConfigs(responderConfigs)
			if err != nil {
				return err
			}
			initiator, err := pase.New(pase.Config{LocalNodeID: initiatorNode, AllowedConfigs: iAllowed, LoggerFactory: opts.loggerFactory})
			if err != nil {
				return err
			}
			defer initiator.Shutdown()
			responder, err := pase.New(pase.Config{LocalNodeID: responderNode, AllowedConfigs: rAllowed, LoggerFactory: opts.loggerFactory})
			if err != nil {
				return err
			}
			defer responder.Shutdown()
			if responderPassword == "" {
				responderPassword = password
			}

			r, pipe := newRun()
			defer pipe.Close()
			res, err := r.RunPASE(cmd.Context(), initiator, responder, pipe, handshake.PASEParams{
				Initiator: pase.InitiatorParams{
					Password:       []byte(password),
					ProposedConfig: proposed,
					SessionKeyID:   sessionKeyID,
					EncryptionType: pase.EncryptionTypeAES128CTRSHA1,
					PasswordSource: pase.PasswordSourcePairingCode,
					ConfirmKey:     confirm,
				},
				Password: handshake.StaticPassword([]byte(responderPassword)),
			})
			if err != nil {
				return err
			}
			defer res.InitiatorKey.Clear()
			defer res.ResponderKey.Clear()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:         %s\n", res.Config)
			fmt.Fprintf(out, "session key id: %d\n", res.InitiatorKey.ID)
			fmt.Fprintf(out, "encryption key: %s\n", hex.EncodeToString(res.InitiatorKey.EncryptionKey()))
			fmt.Fprintf(out, "integrity key:  %s\n", hex.EncodeToString(res.InitiatorKey.IntegrityKey()))
			return nil
		},
	}
	cmd.Flags().IntVar(&config, "config", -1, "proposed config number 0-5 (default: first allowed)")
	cmd.Flags().StringVar(&password, "password", "", "initiator password")
	cmd.Flags().StringVar(&responderPassword, "responder-password", "", "responder password (default: --password)")
	cmd.Flags().BoolVar(&confirm, "confirm", true, "perform key confirmation")
	cmd.Flags().Uint16Var(&sessionKeyID, "session-key-id", 1, "session key id")
	cmd.Flags().Uint64Var(&initiatorNode, "initiator-node", 1, "initiator node id")
	cmd.Flags().Uint64Var(&responderNode, "responder-node", 2, "responder node id")
	cmd.Flags().UintSliceVar(&initiatorConfigs, "initiator-configs", nil, "configs the initiator allows, in preference order (default 5,4,3,2,1)")
	cmd.Flags().UintSliceVar(&responderConfigs, "responder-configs", nil, "configs the responder allows (default 5,4,3,2,1)")
	cmd.MarkFlagRequired("password")
	return cmd
}

func keyExportConfigs(nums []uint) keyexport.ConfigSet {
	var set keyexport.ConfigSet
	for _, n := range nums {
		set = append(set, keyexport.ProtocolConfig(n))
	}
	return set
}

func loopbackKeyExportCmd(opts *rootOptions, newRun runFactory) *cobra.Command {
	var (
		id               string
		config           uint8
		responderConfigs []uint
	)
	cmd := &cobra.Command{
		Use:   "key-export",
		Short: "Export a key from the --db key store to a local initiator",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := parseKeyID(id)
			if err != nil {
				return err
			}
			store, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			// Both engines run in this process, so unsigned messages are
			// authorized.
			initiator, err := keyexport.New(keyexport.Config{
				Delegate:      &keyexport.StaticDelegate{AllowUnsigned: true},
				LoggerFactory: opts.loggerFactory,
			})
			if err != nil {
				return err
			}
			defer initiator.Shutdown()
			responder, err := keyexport.New(keyexport.Config{
				Delegate:       &keyexport.StaticDelegate{AllowUnsigned: true},
				KeyStore:       store,
				AllowedConfigs: keyExportConfigs(responderConfigs),
				LoggerFactory:  opts.loggerFactory,
			})
			if err != nil {
				return err
			}
			defer responder.Shutdown()

			r, pipe := newRun()
			defer pipe.Close()
			res, err := r.RunKeyExport(cmd.Context(), initiator, responder, pipe, handshake.KeyExportParams{
				Config: keyexport.ProtocolConfig(config),
				KeyID:  keyID,
			})
			if err != nil {
				return err
			}
			defer crypto.ClearSecretData(res.Key)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", res.Config)
			fmt.Fprintf(out, "key id: %s\n", res.KeyID)
			fmt.Fprintf(out, "key:    %s\n", hex.EncodeToString(res.Key))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id to export (name or number)")
	cmd.Flags().Uint8Var(&config, "config", uint8(keyexport.Config2), "proposed config (1: secp224r1, 2: P-256)")
	cmd.Flags().UintSliceVar(&responderConfigs, "responder-configs", nil, "configs the responder allows (default 1,2)")
	cmd.MarkFlagRequired("id")
	return cmd
}
