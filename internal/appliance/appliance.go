package appliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/process"
)

// Appliance is the opaque capability the bridge needs from the stove:
// read a state group as JSON and write one setting.
type Appliance interface {
	Query(ctx context.Context, args []string) (json.RawMessage, error)
	Command(ctx context.Context, path, value string) error
}

// Runner executes one external command. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (process.Result, error)
}

// Client talks to the appliance through the pyduro command-line tool.
//
// Every call spawns one tool invocation:
//
//	python3 -m pyduro -b <host> -s <serial> -p <pin> <args...>
type Client struct {
	runner     Runner
	binary     string
	moduleArgs []string
	host       string
	serial     string
	pin        string
}

// New creates a Client. Host, serial and PIN are all required.
func New(cfg config.ApplianceConfig, runner Runner) (*Client, error) {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "host")
	}
	if cfg.Serial == "" {
		missing = append(missing, "serial")
	}
	if cfg.PIN == "" {
		missing = append(missing, "pin")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	if cfg.Binary == "" {
		return nil, fmt.Errorf("%w: missing binary", ErrNotConfigured)
	}
	if runner == nil {
		runner = process.NewRunner(process.Config{Timeout: cfg.Timeout})
	}

	return &Client{
		runner:     runner,
		binary:     cfg.Binary,
		moduleArgs: append([]string(nil), cfg.ModuleArgs...),
		host:       cfg.Host,
		serial:     cfg.Serial,
		pin:        cfg.PIN,
	}, nil
}

// argv builds the full argument list for one invocation.
func (c *Client) argv(args ...string) []string {
	out := make([]string, 0, len(c.moduleArgs)+6+len(args))
	out = append(out, c.moduleArgs...)
	out = append(out, "-b", c.host, "-s", c.serial, "-p", c.pin)
	return append(out, args...)
}

// Query runs the tool with args (e.g. "get", "settings", "boiler.*") and
// returns its stdout as compacted JSON.
func (c *Client) Query(ctx context.Context, args []string) (json.RawMessage, error) {
	if len(args) == 0 {
		return nil, ErrNoArgs
	}

	res, err := c.runner.Run(ctx, c.binary, c.argv(args...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrQueryFailed, strings.Join(args, " "), err)
	}

	var out bytes.Buffer
	if err := json.Compact(&out, bytes.TrimSpace(res.Stdout)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}

// Command writes value to the setting at path, e.g. ("boiler.temp", "21").
func (c *Client) Command(ctx context.Context, path, value string) error {
	if path == "" {
		return ErrNoArgs
	}
	if _, err := c.runner.Run(ctx, c.binary, c.argv("set", path, value)...); err != nil {
		return fmt.Errorf("%w: %s=%s: %w", ErrCommandFailed, path, value, err)
	}
	return nil
}

// SetMessage is the payload the platform publishes on the command topic,
// e.g. {"path": "misc.start", "value": "1"}.
type SetMessage struct {
	Path  string
	Value string
}

// ParseSetMessage decodes a command-topic payload. The value may be a JSON
// string or number; numbers are kept in their literal form.
func ParseSetMessage(payload []byte) (SetMessage, error) {
	var raw struct {
		Path  string          `json:"path"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return SetMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if raw.Path == "" {
		return SetMessage{}, fmt.Errorf("%w: path is required", ErrInvalidCommand)
	}

	msg := SetMessage{Path: raw.Path}
	value := bytes.TrimSpace(raw.Value)
	switch {
	case len(value) == 0:
		return SetMessage{}, fmt.Errorf("%w: value is required", ErrInvalidCommand)
	case value[0] == '"':
		if err := json.Unmarshal(value, &msg.Value); err != nil {
			return SetMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return SetMessage{}, fmt.Errorf("%w: value must be a string or number", ErrInvalidCommand)
		}
		msg.Value = n.String()
	}
	return msg, nil
}
