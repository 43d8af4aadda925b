package bridge

import (
	"context"
	"errors"

	"github.com/nerrad567/aduro-bridge/internal/appliance"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// Refresh trigger sources, used in logs.
const (
	sourceCommand = "command"
	sourceButton  = "button"
	sourceAPI     = "api"
)

// handleTelemetry feeds a state snapshot to auto-discovery.
func (b *Bridge) handleTelemetry(topic string, payload []byte) error {
	if b.auto == nil {
		return nil
	}
	b.auto.Handle(topic, payload)
	return nil
}

// handleCommand reacts to a message on the command topic.
//
// The appliance tool normally executes set messages itself and the bridge
// only schedules a refresh. With forwarding enabled the bridge executes the
// command first, off the MQTT callback, and triggers once it returns.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	if !b.cfg.Refresh.ForwardCommands || b.appliance == nil {
		b.trigger(sourceCommand)
		return nil
	}

	msg, err := appliance.ParseSetMessage(payload)
	if err != nil {
		b.logWarn("ignoring malformed command", "error", err)
		return nil
	}

	b.stopMu.Lock()
	if b.stopping {
		b.stopMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.stopMu.Unlock()

	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		if err := b.appliance.Command(ctx, msg.Path, msg.Value); err != nil {
			b.logWarn("forwarded command failed", "path", msg.Path, "error", err)
		} else {
			b.logInfo("forwarded command", "path", msg.Path, "value", msg.Value)
		}
		b.trigger(sourceCommand)
	}()
	return nil
}

// handleRefresh reacts to the refresh button.
func (b *Bridge) handleRefresh(_ string, _ []byte) error {
	b.trigger(sourceButton)
	return nil
}

// RequestRefresh triggers a refresh on behalf of the status API.
func (b *Bridge) RequestRefresh() error {
	err := b.TriggerRefresh()
	if err == nil {
		b.logDebug("refresh requested", "source", sourceAPI)
	}
	return err
}

func (b *Bridge) trigger(source string) {
	err := b.TriggerRefresh()
	switch {
	case err == nil:
		b.logDebug("refresh requested", "source", source)
	case errors.Is(err, refresh.ErrStopped), errors.Is(err, ErrRefreshDisabled):
	default:
		b.logWarn("refresh trigger failed", "source", source, "error", err)
	}
}
