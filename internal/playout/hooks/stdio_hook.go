package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StdioHook writes event data to stdio in a configured format.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook creates a new stdio hook.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

// SetOutput overrides the output destination (default stderr).
func (h *StdioHook) SetOutput(output *os.File) *StdioHook {
	h.output = output
	return h
}

// Execute writes the event in the configured format.
func (h *StdioHook) Execute(ctx context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format: %s", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "PLAYOUT_EVENT: %s\n", string(data))
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# playout event: " + string(event.Type),
		fmt.Sprintf("PLAYOUT_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("PLAYOUT_TIMESTAMP=%d", event.Timestamp),
	}
	if event.ChannelID != "" {
		lines = append(lines, "PLAYOUT_CHANNEL_ID="+event.ChannelID)
	}
	if event.BlockID != "" {
		lines = append(lines, "PLAYOUT_BLOCK_ID="+event.BlockID)
	}
	if event.SegmentID != "" {
		lines = append(lines, "PLAYOUT_SEGMENT_ID="+event.SegmentID)
	}
	for key, value := range event.Data {
		lines = append(lines, "PLAYOUT_"+strings.ToUpper(key)+fmt.Sprintf("=%v", value))
	}
	lines = append(lines, "")
	for _, l := range lines {
		if _, err := fmt.Fprintln(h.output, l); err != nil {
			return fmt.Errorf("stdio hook %s: write: %w", h.id, err)
		}
	}
	return nil
}
