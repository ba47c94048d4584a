package hotkey

import (
	"context"
	"log/slog"

	"github.com/jochenvg/go-udev"
)

// watchInputHotplug returns a channel that receives a tick whenever a
// device in the "input" subsystem is added or removed, via
// doismellburning-samoyed's go-udev hotplug watcher, repurposed here from
// USB ham-radio adapters to keyboards. If udev monitoring can't start, the
// returned channel simply never fires and the descriptor-liveness check
// remains the fallback.
func watchInputHotplug() <-chan struct{} {
	out := make(chan struct{}, 1)

	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if mon == nil {
		slog.Warn("udev monitor unavailable, relying on periodic descriptor checks for input hotplug")
		return out
	}
	if err := mon.FilterAddMatchSubsystem("input"); err != nil {
		slog.Warn("udev input subsystem filter failed", "error", err)
		return out
	}

	ctx, cancel := context.WithCancel(context.Background())
	deviceChan, errChan, err := mon.DeviceChan(ctx)
	if err != nil {
		slog.Warn("udev monitor start failed", "error", err)
		cancel()
		return out
	}

	go func() {
		defer cancel()
		for {
			select {
			case _, ok := <-deviceChan:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-errChan:
				if !ok {
					return
				}
				slog.Warn("udev monitor error", "error", err)
			}
		}
	}()

	return out
}
