package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gpg-expire-warner/config"
	"gpg-expire-warner/internal/domain"
)

const (
	primaryFpr = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	subkey1    = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	subkey2    = "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
)

func int64Ptr(v int64) *int64 { return &v }

func TestCheckOptions_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		opts       checkOptions
		profile    config.Profile
		wantDays   int64
		wantKeys   []domain.KeyID
		wantExpire string
		wantErr    bool
	}{
		{
			name:     "flags only",
			opts:     checkOptions{warnDays: 7, daysSet: true, keys: []string{subkey1}, output: outputText},
			wantDays: 7,
			wantKeys: []domain.KeyID{subkey1},
		},
		{
			name:       "profile fills missing flags",
			opts:       checkOptions{output: outputText},
			profile:    config.Profile{WarnDays: int64Ptr(30), Keys: []string{subkey2}, Expire: "2y"},
			wantDays:   30,
			wantKeys:   []domain.KeyID{subkey2},
			wantExpire: "2y",
		},
		{
			name:       "flags override profile",
			opts:       checkOptions{warnDays: 0, daysSet: true, keys: []string{subkey1}, expire: "1y", output: outputJSON},
			profile:    config.Profile{WarnDays: int64Ptr(30), Keys: []string{subkey2}, Expire: "2y"},
			wantDays:   0,
			wantKeys:   []domain.KeyID{subkey1},
			wantExpire: "1y",
		},
		{
			name:     "all without keys",
			opts:     checkOptions{warnDays: 3, daysSet: true, all: true, output: outputText},
			wantDays: 3,
		},
		{
			name:    "missing days",
			opts:    checkOptions{keys: []string{subkey1}, output: outputText},
			wantErr: true,
		},
		{
			name:    "missing keys",
			opts:    checkOptions{warnDays: 3, daysSet: true, output: outputText},
			wantErr: true,
		},
		{
			name:    "lowercase key",
			opts:    checkOptions{warnDays: 3, daysSet: true, keys: []string{strings.ToLower(subkey1)}, output: outputText},
			wantErr: true,
		},
		{
			name:    "unknown output",
			opts:    checkOptions{warnDays: 3, daysSet: true, keys: []string{subkey1}, output: "yaml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, expire, err := tt.opts.resolve(&tt.profile)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if req.WarnDays != tt.wantDays {
				t.Errorf("want warn days %d, got %d", tt.wantDays, req.WarnDays)
			}
			if diff := cmp.Diff(tt.wantKeys, req.Keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
			if expire != tt.wantExpire {
				t.Errorf("want expire %q, got %q", tt.wantExpire, expire)
			}
		})
	}
}

func TestCheckOptions_Resolve_MissingDaysIsInvalidWarnDays(t *testing.T) {
	opts := checkOptions{keys: []string{subkey1}, output: outputText}
	_, _, err := opts.resolve(&config.Profile{})
	if !errors.Is(err, domain.ErrInvalidWarnDays) {
		t.Errorf("want ErrInvalidWarnDays, got %v", err)
	}
}

func TestWriteReport_Text(t *testing.T) {
	run := &domain.CheckRun{
		WarnDays: 2,
		Flagged: []domain.ExpiringKey{
			{Fingerprint: subkey1, Primary: primaryFpr, Days: 1},
			{Fingerprint: subkey2, Primary: primaryFpr, Days: -3},
		},
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, outputText, run); err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}

	want := "The following GPG keys will expire soon:\n" +
		subkey1 + ": 1 days\n" +
		subkey2 + ": -3 days\n"
	if buf.String() != want {
		t.Errorf("want %q, got %q", want, buf.String())
	}
}

func TestWriteReport_TextNothingFlagged(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, outputText, &domain.CheckRun{WarnDays: 2}); err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("want empty output, got %q", buf.String())
	}
}

func TestWriteReport_JSON(t *testing.T) {
	run := &domain.CheckRun{
		ID:       "check-1",
		WarnDays: 2,
		Flagged:  []domain.ExpiringKey{{Fingerprint: subkey1, Primary: primaryFpr, Days: 1}},
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, outputJSON, run); err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}

	var got reportJSON
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	want := reportJSON{
		CheckID:  "check-1",
		WarnDays: 2,
		Keys:     []flaggedKeyJSON{{Fingerprint: subkey1, Primary: primaryFpr, Days: 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

// fakeKeyring はgpgの代替スクリプトと、その呼び出しを記録するファイルを用意する。
type fakeKeyring struct {
	dir     string
	setLog  string
	binary  string
	listing string
}

// newFakeKeyring は主鍵(無期限)と1日後・5日後に期限を迎える副鍵を返すgpgを作る。
func newFakeKeyring(t *testing.T, listExit int) *fakeKeyring {
	t.Helper()

	dir := t.TempDir()
	now := time.Now().Unix()
	hour := int64(3600)
	listing := strings.Join([]string{
		"tru::1:1700000000:0:3:1:5",
		"pub:u:255:22:AAAAAAAAAAAAAAAA:1600000000:::u:::scESC:::::ed25519:::0:",
		"fpr:::::::::" + primaryFpr + ":",
		"uid:u::::1600000000::HASH::Test User <test@example.com>::::::::::0:",
		fmt.Sprintf("sub:u:255:18:BBBBBBBBBBBBBBBB:1600000000:%d:::::e:::::cv25519::", now+domain.SecondsPerDay+hour),
		"fpr:::::::::" + subkey1 + ":",
		fmt.Sprintf("sub:u:255:22:CCCCCCCCCCCCCCCC:1600000000:%d:::::s:::::ed25519::", now+5*domain.SecondsPerDay+hour),
		"fpr:::::::::" + subkey2 + ":",
	}, "\n") + "\n"

	k := &fakeKeyring{
		dir:     dir,
		setLog:  filepath.Join(dir, "set-expire.log"),
		binary:  filepath.Join(dir, "gpg"),
		listing: filepath.Join(dir, "listing"),
	}
	if err := os.WriteFile(k.listing, []byte(listing), 0644); err != nil {
		t.Fatalf("failed to write listing: %v", err)
	}

	script := fmt.Sprintf(`#!/bin/sh
case " $* " in
*" --list-keys"*)
	cat '%s'
	exit %d
	;;
*" --quick-set-expire "*)
	echo "$@" >> '%s'
	;;
esac
`, k.listing, listExit, k.setLog)
	if err := os.WriteFile(k.binary, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake gpg: %v", err)
	}
	return k
}

func (k *fakeKeyring) setExpireCalls(t *testing.T) []string {
	t.Helper()

	data, err := os.ReadFile(k.setLog)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read set-expire log: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// isolate はプロファイルや環境変数の影響を受けないようにする。
func isolate(t *testing.T, k *fakeKeyring) {
	t.Helper()

	t.Setenv("GPG_BINARY", k.binary)
	t.Setenv("GNUPGHOME", "")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(k.dir, "history.db"))
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func run(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestExecute_AllClear(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, _ := run("--days", "0", primaryFpr, subkey1, subkey2)
	if code != exitClear {
		t.Errorf("want exit %d, got %d", exitClear, code)
	}
	if stdout != "" {
		t.Errorf("want no report, got %q", stdout)
	}
}

func TestExecute_Flagged(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, _ := run("-d", "2", primaryFpr, subkey1, subkey2)
	if code != exitFlagged {
		t.Errorf("want exit %d, got %d", exitFlagged, code)
	}
	want := "The following GPG keys will expire soon:\n" + subkey1 + ": 1 days\n"
	if stdout != want {
		t.Errorf("want %q, got %q", want, stdout)
	}
	if calls := k.setExpireCalls(t); len(calls) != 0 {
		t.Errorf("want no extension without --expire, got %v", calls)
	}
}

func TestExecute_Expire(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, stderr := run("--days", "7", "--expire", "1y", subkey1, subkey2)
	if code != exitClear {
		t.Fatalf("want exit %d, got %d (stderr %q)", exitClear, code, stderr)
	}
	if !strings.Contains(stdout, "Setting expiry to 1y for subkeys: "+subkey1+", "+subkey2+"\n") {
		t.Errorf("unexpected output %q", stdout)
	}

	want := []string{"--quick-set-expire " + primaryFpr + " 1y " + subkey1 + " " + subkey2}
	if diff := cmp.Diff(want, k.setExpireCalls(t)); diff != "" {
		t.Errorf("set-expire calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_AllFromProfile(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	profile := filepath.Join(k.dir, "profile.toml")
	if err := os.WriteFile(profile, []byte("warn_days = 7\n"), 0644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	code, stdout, _ := run("--config", profile, "--all")
	if code != exitFlagged {
		t.Errorf("want exit %d, got %d", exitFlagged, code)
	}
	want := "The following GPG keys will expire soon:\n" + subkey1 + ": 1 days\n" + subkey2 + ": 5 days\n"
	if stdout != want {
		t.Errorf("want %q, got %q", want, stdout)
	}
}

func TestExecute_Fatal(t *testing.T) {
	tests := []struct {
		name       string
		listExit   int
		args       []string
		wantStderr string
	}{
		{name: "gpg fails", listExit: 2, args: []string{"--days", "7", subkey1}, wantStderr: "gpg command failed"},
		{name: "malformed key id", args: []string{"--days", "7", "abc"}, wantStderr: "invalid key ID"},
		{name: "malformed second key id", args: []string{"--days", "7", subkey1, "abc"}, wantStderr: "invalid key ID"},
		{name: "no days", args: []string{subkey1}, wantStderr: "--days is required"},
		{name: "no keys", args: []string{"--days", "7"}, wantStderr: "no keys given"},
		{name: "unknown flag", args: []string{"--nope"}, wantStderr: "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newFakeKeyring(t, tt.listExit)
			isolate(t, k)

			code, stdout, stderr := run(tt.args...)
			if code != exitFatal {
				t.Errorf("want exit %d, got %d", exitFatal, code)
			}
			if stdout != "" {
				t.Errorf("want no report on fatal error, got %q", stdout)
			}
			if !strings.Contains(stderr, "Error: ") || !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("want error containing %q on stderr, got %q", tt.wantStderr, stderr)
			}
			if strings.Contains(stderr, "unknown command") {
				t.Errorf("key arguments must not be taken as subcommands, got %q", stderr)
			}
		})
	}
}

func TestExecute_KeyArgumentsReachGPG(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, stderr := run(subkey2, "--days", "5")
	if code != exitFlagged {
		t.Fatalf("want exit %d, got %d (stderr %q)", exitFlagged, code, stderr)
	}
	want := "The following GPG keys will expire soon:\n" + subkey2 + ": 5 days\n"
	if stdout != want {
		t.Errorf("want %q, got %q", want, stdout)
	}
}

func TestExecute_ExpireJSONKeepsStdoutParseable(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, stderr := run("--days", "7", "--output", "json", "--expire", "1y", subkey1, subkey2)
	if code != exitClear {
		t.Fatalf("want exit %d, got %d (stderr %q)", exitClear, code, stderr)
	}

	var got reportJSON
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout is not a single JSON document %q: %v", stdout, err)
	}
	want := reportJSON{
		WarnDays: 7,
		Keys: []flaggedKeyJSON{
			{Fingerprint: subkey1, Primary: primaryFpr, Days: 1},
			{Fingerprint: subkey2, Primary: primaryFpr, Days: 5},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(stderr, "Setting expiry to 1y for subkeys: "+subkey1+", "+subkey2) {
		t.Errorf("want extension progress on stderr, got %q", stderr)
	}
	if calls := k.setExpireCalls(t); len(calls) != 1 {
		t.Errorf("want 1 set-expire call, got %v", calls)
	}
}

func TestExecute_RecordAndHistory(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	if code, _, stderr := run("--days", "2", "--record", "--output", "json", subkey1); code != exitFlagged {
		t.Fatalf("want exit %d, got %d (stderr %q)", exitFlagged, code, stderr)
	}

	code, stdout, stderr := run("history")
	if code != exitClear {
		t.Fatalf("want exit %d, got %d (stderr %q)", exitClear, code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("want header and one run, got %q", stdout)
	}
	if !strings.HasPrefix(lines[0], "CHECK ID") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if fields := strings.Fields(lines[1]); fields[len(fields)-1] != "1" {
		t.Errorf("want 1 flagged key, got %q", lines[1])
	}
}

func TestExecute_Version(t *testing.T) {
	k := newFakeKeyring(t, 0)
	isolate(t, k)

	code, stdout, _ := run("version")
	if code != exitClear {
		t.Errorf("want exit %d, got %d", exitClear, code)
	}
	if stdout != "gpg-expire-warner version "+version+"\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}
