package commands

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/backkem/weave/pkg/keystore"
	"github.com/backkem/weave/pkg/keystore/keystoretest"
)

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"keystore": {"put", "list", "delete", "show", "derive"},
		"passcode": {"encrypt", "decrypt", "inspect"},
		"loopback": {"pase", "key-export"},
	}
	root := newRootCmd()
	for parent, children := range want {
		for _, child := range children {
			cmd, _, err := root.Find([]string{parent, child})
			if err != nil || cmd.Name() != child {
				t.Errorf("%s %s: not found (%v)", parent, child, err)
			}
		}
	}
}

func TestParseKeyID(t *testing.T) {
	tests := []struct {
		in      string
		want    keystore.KeyID
		wantErr bool
	}{
		{"fabric-secret", keystore.FabricSecret, false},
		{"Client-Root", keystore.ClientRootKey, false},
		{"current-epoch", keystore.CurrentEpochKey, false},
		{"0x20080", keystore.MakeEpochKeyID(1), false},
		{"196612", keystore.MakeGroupMasterKeyID(4), false},
		{"0x12345", keystore.KeyIDNone, true},
		{"nonsense", keystore.KeyIDNone, true},
	}
	for _, tc := range tests {
		got, err := parseKeyID(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseKeyID(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseKeyID(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestPaseConfig(t *testing.T) {
	if c, err := paseConfig(-1); err != nil || c.SecurityStrength() != 0 {
		t.Errorf("paseConfig(-1) = %s, %v", c, err)
	}
	if c, err := paseConfig(5); err != nil || c.String() != "Config5" {
		t.Errorf("paseConfig(5) = %s, %v", c, err)
	}
	if _, err := paseConfig(6); err == nil {
		t.Error("paseConfig(6) succeeded")
	}
}

func TestPasscodeTestConfigRoundTrip(t *testing.T) {
	enc := strings.TrimSpace(mustRun(t, "passcode", "encrypt", "--config", "1", "--nonce", "7", "123456"))
	if len(enc) != 2*41 {
		t.Fatalf("encrypted passcode = %q", enc)
	}
	if got := strings.TrimSpace(mustRun(t, "passcode", "decrypt", enc)); got != "123456" {
		t.Errorf("decrypted %q", got)
	}
	info := mustRun(t, "passcode", "inspect", enc)
	if !strings.Contains(info, "config:      1") {
		t.Errorf("inspect output:\n%s", info)
	}
}

func TestKeystoreRequiresDatabase(t *testing.T) {
	if _, err := run(t, "keystore", "list"); err != errNoDatabase {
		t.Errorf("expected errNoDatabase, got %v", err)
	}
}

// populate stores the fixture fabric secret, epoch key 0 and group master
// key 4 in db.
func populate(t *testing.T, db string) {
	t.Helper()
	mustRun(t, "--db", db, "keystore", "put", "--id", "fabric-secret",
		"--secret", hex.EncodeToString(keystoretest.FabricSecret()))
	mustRun(t, "--db", db, "keystore", "put", "--id", fmt.Sprintf("%#x", uint32(keystore.MakeEpochKeyID(0))),
		"--secret", hex.EncodeToString(keystoretest.EpochKey(0)), "--start", "1000")
	mustRun(t, "--db", db, "keystore", "put", "--id", fmt.Sprintf("%#x", uint32(keystore.MakeGroupMasterKeyID(4))),
		"--secret", hex.EncodeToString(keystoretest.GroupMasterKey()), "--global-id", "42")
}

func TestKeystoreCommands(t *testing.T) {
	db := t.TempDir()
	populate(t, db)

	list := mustRun(t, "--db", db, "keystore", "list")
	for _, want := range []string{"FabricSecret", "GroupMasterKey4"} {
		if !strings.Contains(list, want) {
			t.Errorf("list output missing %s:\n%s", want, list)
		}
	}

	show := strings.Fields(mustRun(t, "--db", db, "keystore", "show", "--id", "fabric-secret"))
	if len(show) != 2 || show[1] != hex.EncodeToString(keystoretest.FabricSecret()) {
		t.Errorf("show output = %v", show)
	}

	static := keystore.MakeAppStaticKeyID(keystore.ClientRootKey, keystore.MakeGroupMasterKeyID(4))
	derived := strings.Fields(mustRun(t, "--db", db, "keystore", "derive",
		"--id", fmt.Sprintf("%#x", uint32(static)), "--salt", "0102", "--diversifier", "1a655d96", "--len", "36"))
	if len(derived) < 2 || len(derived[len(derived)-1]) != 72 {
		t.Errorf("derive output = %v", derived)
	}

	mustRun(t, "--db", db, "keystore", "delete", "--id", "fabric-secret")
	if _, err := run(t, "--db", db, "keystore", "show", "--id", "fabric-secret"); err == nil {
		t.Error("show succeeded after delete")
	}
}

func TestPasscodeWithKeystore(t *testing.T) {
	db := t.TempDir()
	populate(t, db)

	rotating := keystore.MakeAppRotatingKeyID(keystore.ClientRootKey, keystore.CurrentEpochKey, keystore.MakeGroupMasterKeyID(4), true)
	id := fmt.Sprintf("%#x", uint32(rotating))

	enc := strings.TrimSpace(mustRun(t, "--db", db, "--now", "1500", "passcode", "encrypt", "--id", id, "--nonce", "1", "20202021"))
	info := mustRun(t, "passcode", "inspect", enc)
	if !strings.Contains(info, "GroupMasterKey4") {
		t.Errorf("inspect output:\n%s", info)
	}
	if got := strings.TrimSpace(mustRun(t, "--db", db, "--now", "1500", "passcode", "decrypt", enc)); got != "20202021" {
		t.Errorf("decrypted %q", got)
	}
}

func TestLoopbackKeyExport(t *testing.T) {
	db := t.TempDir()
	populate(t, db)

	show := strings.Fields(mustRun(t, "--db", db, "keystore", "show", "--id", "client-root"))
	out := mustRun(t, "--db", db, "loopback", "key-export", "--id", "client-root", "--config", "1", "--responder-configs", "2")

	if !strings.Contains(out, "config: Config2") {
		t.Errorf("expected reconfigure to Config2:\n%s", out)
	}
	if !strings.Contains(out, "key:    "+show[len(show)-1]) {
		t.Errorf("exported key does not match stored key %s:\n%s", show[len(show)-1], out)
	}
}

func TestLoopbackPASE(t *testing.T) {
	out := mustRun(t, "loopback", "pase", "--password", "20202021",
		"--initiator-configs", "0", "--responder-configs", "0")
	if !strings.Contains(out, "config:         Config0_TEST_ONLY") {
		t.Errorf("output:\n%s", out)
	}

	if _, err := run(t, "loopback", "pase", "--password", "1111", "--responder-password", "2222",
		"--initiator-configs", "0", "--responder-configs", "0"); err == nil {
		t.Error("PASE succeeded with mismatched passwords")
	}
}
