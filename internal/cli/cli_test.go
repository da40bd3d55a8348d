package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moodi-app/moodi/internal/domain"
)

// runCLI executes the root command with args against a fresh MOODI_HOME.
func runCLI(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MOODI_HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MOODI_DATABASE_URL", "")
	t.Setenv("MOODI_REDIS_ADDR", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Commands(t *testing.T) {
	want := []string{"serve", "status", "reflect", "mood", "game", "ledger", "verify", "referral", "config"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	home := t.TempDir()

	out, err := runCLI(t, home, "config", "init")
	if err != nil {
		t.Fatalf("config init error: %v", err)
	}
	if !strings.Contains(out, "config.toml") {
		t.Errorf("output = %q, want the written path", out)
	}
	if _, err := os.Stat(filepath.Join(home, "config.toml")); err != nil {
		t.Errorf("config.toml not written: %v", err)
	}

	if _, err := runCLI(t, home, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}
}

func TestCLI_ReferralAndGame(t *testing.T) {
	home := t.TempDir()

	out, err := runCLI(t, home, "referral", "create", "alice", "bob")
	if err != nil {
		t.Fatalf("referral create error: %v", err)
	}
	var ref domain.Referral
	if err := json.Unmarshal([]byte(out), &ref); err != nil {
		t.Fatalf("decode referral: %v (%s)", err, out)
	}

	if _, err := runCLI(t, home, "referral", "accept", ref.ID); err != nil {
		t.Fatalf("referral accept error: %v", err)
	}

	out, err = runCLI(t, home, "game", "alice")
	if err != nil {
		t.Fatalf("game error: %v", err)
	}
	var st domain.UserGameState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, out)
	}
	if st.Moodcoins != 25 {
		t.Errorf("Moodcoins = %d, want 25", st.Moodcoins)
	}

	out, err = runCLI(t, home, "ledger", "alice")
	if err != nil {
		t.Fatalf("ledger error: %v", err)
	}
	if !strings.Contains(out, "Balance: 25 MoodCoins") {
		t.Errorf("ledger output = %q, want balance 25", out)
	}

	if _, err := runCLI(t, home, "verify", "alice"); err != nil {
		t.Errorf("verify error: %v", err)
	}
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mood.json")
	body := `{"mood_emoji":"😌","mood_color":"#7FD1AE","intensity_0_10":4,"time_bucket":"evening","user_locale":"fr","user_age_bucket":"adult"}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	p, err := readPayload(path, nil)
	if err != nil {
		t.Fatalf("readPayload() error: %v", err)
	}
	if p.UserLocale != domain.LocaleFrench || p.IntensityValue() != 4 {
		t.Errorf("payload = %+v, unexpected", p)
	}

	p, err = readPayload("-", strings.NewReader(body))
	if err != nil {
		t.Fatalf("readPayload(stdin) error: %v", err)
	}
	if p.MoodEmoji != "😌" {
		t.Errorf("MoodEmoji = %q, want 😌", p.MoodEmoji)
	}
}
