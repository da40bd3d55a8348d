package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/moodi-app/moodi/internal/daemon"
	"github.com/moodi-app/moodi/internal/domain"
)

// openDaemon wires the daemon for a one-shot command. Logging drops to warn
// so command output stays readable.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = "warn"
	log, err := daemon.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return daemon.NewWithConfig(ctx, cfg, log)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// readPayload decodes a mood payload from path, or stdin when path is "-".
func readPayload(path string, stdin io.Reader) (domain.MoodPayload, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return domain.MoodPayload{}, err
		}
		defer f.Close()
		r = f
	}
	var p domain.MoodPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return domain.MoodPayload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
