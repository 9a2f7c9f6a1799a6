// Package systemd reports service state to the systemd manager through
// sd_notify. Every call is a no-op when the process is not started by
// systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify is replaced in tests.
var (
	sdNotify          = daemon.SdNotify
	sdWatchdogEnabled = daemon.SdWatchdogEnabled
)

// Ready tells systemd startup is complete (Type=notify units).
func Ready() (bool, error) { return sdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd a graceful shutdown has begun.
func Stopping() (bool, error) { return sdNotify(false, daemon.SdNotifyStopping) }

// Status publishes a free-form status line shown by systemctl status.
func Status(s string) (bool, error) { return sdNotify(false, "STATUS="+s) }

// WatchdogInterval returns how often a keep-alive must be sent, or 0 when
// the unit has no WatchdogSec.
func WatchdogInterval() time.Duration {
	d, err := sdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// RunWatchdog pings systemd at half the watchdog interval until ctx is done.
// It returns immediately when the watchdog is not enabled.
func RunWatchdog(ctx context.Context) {
	d := WatchdogInterval()
	if d <= 0 {
		return
	}
	t := time.NewTicker(d / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = sdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
