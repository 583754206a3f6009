package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backkem/weave/pkg/crypto"
	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/passcode"
)

func passcodeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passcode",
		Short: "Encrypt and decrypt device passcodes",
	}
	cmd.AddCommand(passcodeEncryptCmd(opts), passcodeDecryptCmd(opts), passcodeInspectCmd())
	return cmd
}

// keyDeriver opens the key database only for configs that need keys.
func (o *rootOptions) keyDeriver(config uint8) (passcode.KeyDeriver, func() error, error) {
	if config != passcode.Config2 {
		return nil, func() error { return nil }, nil
	}
	return o.openStore()
}

func passcodeEncryptCmd(opts *rootOptions) *cobra.Command {
	var id string
	var config uint8
	var nonce uint32
	cmd := &cobra.Command{
		Use:   "encrypt <passcode>",
		Short: "Encrypt a passcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID := keystore.KeyIDNone
			if config == passcode.Config2 {
				var err error
				if keyID, err = parseKeyID(id); err != nil {
					return err
				}
			}
			keys, closeStore, err := opts.keyDeriver(config)
			if err != nil {
				return err
			}
			defer closeStore()

			pc := []byte(args[0])
			defer crypto.ClearSecretData(pc)
			out, err := passcode.EncryptPasscode(config, keyID, nonce, pc, keys)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
			return nil
		},
	}
	cmd.Flags().Uint8Var(&config, "config", passcode.Config2, "encryption config (1: test only, 2: AES-128/HMAC-SHA1)")
	cmd.Flags().StringVar(&id, "id", "", "application key id (name or number), required for config 2")
	cmd.Flags().Uint32Var(&nonce, "nonce", 0, "nonce")
	return cmd
}

func passcodeDecryptCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <hex>",
		Short: "Decrypt an encrypted passcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypted, err := parseHex("encrypted passcode", args[0])
			if err != nil {
				return err
			}
			config, err := passcode.GetEncryptedPasscodeConfig(encrypted)
			if err != nil {
				return err
			}
			keys, closeStore, err := opts.keyDeriver(config)
			if err != nil {
				return err
			}
			defer closeStore()

			pc, err := passcode.DecryptPasscode(encrypted, keys)
			if err != nil {
				return err
			}
			defer crypto.ClearSecretData(pc)
			fmt.Fprintln(cmd.OutOrStdout(), string(pc))
			return nil
		},
	}
}

func passcodeInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <hex>",
		Short: "Print the clear fields of an encrypted passcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypted, err := parseHex("encrypted passcode", args[0])
			if err != nil {
				return err
			}
			config, err := passcode.GetEncryptedPasscodeConfig(encrypted)
			if err != nil {
				return err
			}
			keyID, err := passcode.GetEncryptedPasscodeKeyID(encrypted)
			if err != nil {
				return err
			}
			nonce, err := passcode.GetEncryptedPasscodeNonce(encrypted)
			if err != nil {
				return err
			}
			fp, err := passcode.GetEncryptedPasscodeFingerprint(encrypted)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:      %d\n", config)
			fmt.Fprintf(out, "key id:      %s\n", keyID)
			fmt.Fprintf(out, "nonce:       %#08x\n", nonce)
			fmt.Fprintf(out, "fingerprint: %s\n", hex.EncodeToString(fp))
			return nil
		},
	}
}
