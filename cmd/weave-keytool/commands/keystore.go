package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backkem/weave/pkg/keystore"
)

// storedKeyTypes are the key types a database may hold.
var storedKeyTypes = []keystore.KeyType{
	keystore.KeyTypeGeneral,
	keystore.KeyTypeAppRootKey,
	keystore.KeyTypeAppEpochKey,
	keystore.KeyTypeAppGroupMasterKey,
}

func keystoreCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage group keys in a badger database",
	}
	cmd.AddCommand(keystorePutCmd(opts), keystoreListCmd(opts), keystoreDeleteCmd(opts),
		keystoreShowCmd(opts), keystoreDeriveCmd(opts))
	return cmd
}

func keystorePutCmd(opts *rootOptions) *cobra.Command {
	var id, secret string
	var start, globalID uint32
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store a fabric secret, root, epoch or group master key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := parseKeyID(id)
			if err != nil {
				return err
			}
			b, err := parseHex("secret", secret)
			if err != nil {
				return err
			}
			key, err := keystore.NewGroupKey(keyID, b)
			if err != nil {
				return err
			}
			defer key.Clear()
			key.StartTime = start
			key.GlobalID = globalID

			s, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			if err := s.StoreGroupKey(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", keyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id (name or number)")
	cmd.Flags().StringVar(&secret, "secret", "", "key material in hex")
	cmd.Flags().Uint32Var(&start, "start", 0, "epoch key start time in UTC seconds")
	cmd.Flags().Uint32Var(&globalID, "global-id", 0, "group master key global id")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func keystoreListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored key ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			out := cmd.OutOrStdout()
			for _, t := range storedKeyTypes {
				ids, err := s.EnumerateGroupKeys(t)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintf(out, "%#08x %s\n", uint32(id), id)
				}
			}
			return nil
		},
	}
}

func keystoreDeleteCmd(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stored key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := parseKeyID(id)
			if err != nil {
				return err
			}
			s, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			return s.DeleteGroupKey(keyID)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id (name or number)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func keystoreShowCmd(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored or derived group key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := parseKeyID(id)
			if err != nil {
				return err
			}
			s, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			key, err := s.GetGroupKey(keyID)
			if err != nil {
				return err
			}
			defer key.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", key.KeyID, hex.EncodeToString(key.Secret()))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id (name or number)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func keystoreDeriveCmd(opts *rootOptions) *cobra.Command {
	var id, salt, diversifier string
	var keyLen int
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive an application key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := parseKeyID(id)
			if err != nil {
				return err
			}
			saltBytes, err := parseHex("salt", salt)
			if err != nil {
				return err
			}
			div, err := parseHex("diversifier", diversifier)
			if err != nil {
				return err
			}
			s, closeStore, err := opts.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			key, err := s.DeriveApplicationKey(keyID, saltBytes, div, keyLen)
			if err != nil {
				return err
			}
			defer key.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", key.KeyID, hex.EncodeToString(key.Key))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "application key id (name or number)")
	cmd.Flags().StringVar(&salt, "salt", "", "HKDF salt in hex")
	cmd.Flags().StringVar(&diversifier, "diversifier", "", "key diversifier in hex")
	cmd.Flags().IntVar(&keyLen, "len", 16, "derived key length in bytes")
	cmd.MarkFlagRequired("id")
	return cmd
}
