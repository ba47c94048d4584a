// Package capabilities probes the Linux session for everything dictation
// needs: session type, clipboard helpers, raw-input readability, uinput
// writability. A separate one-shot privileged repair fixes the input-device
// permissions via pkexec.
package capabilities

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"golang.org/x/sys/unix"

	apperrors "github.com/openflow/dictation/internal/errors"
)

// Probe is the read-only capability snapshot, attached to
// paste-failed events so the UI can explain what is missing.
type Probe struct {
	SessionType      string   `json:"sessionType"` // "wayland" | "x11"
	WlCopyAvailable  bool     `json:"wlCopyAvailable"`
	WlPasteAvailable bool     `json:"wlPasteAvailable"`
	XclipAvailable   bool     `json:"xclipAvailable"`
	PkexecAvailable  bool     `json:"pkexecAvailable"`
	SetfaclAvailable bool     `json:"setfaclAvailable"`
	DevInputReadable bool     `json:"devInputReadable"`
	UinputWritable   bool     `json:"uinputWritable"`
	Details          []string `json:"details"`
}

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

func have(binary string) bool {
	_, err := lookPath(binary)
	return err == nil
}

// Detect runs every probe. wayland selects which clipboard helpers count
// as the session-appropriate ones in the diagnostics strings.
func Detect(wayland bool) Probe {
	p := Probe{
		WlCopyAvailable:  have("wl-copy"),
		WlPasteAvailable: have("wl-paste"),
		XclipAvailable:   have("xclip"),
		PkexecAvailable:  have("pkexec"),
		SetfaclAvailable: have("setfacl"),
	}
	if wayland {
		p.SessionType = "wayland"
	} else {
		p.SessionType = "x11"
	}

	p.DevInputReadable = dirReadable("/dev/input")
	p.UinputWritable = unix.Access("/dev/uinput", unix.W_OK) == nil

	if wayland {
		if !p.WlCopyAvailable {
			p.Details = append(p.Details, "wl-copy not found; clipboard writes will fail on Wayland")
		}
		if !p.WlPasteAvailable {
			p.Details = append(p.Details, "wl-paste not found; clipboard confirmation will fail on Wayland")
		}
	} else if !p.XclipAvailable {
		p.Details = append(p.Details, "xclip not found; clipboard writes will fail on X11")
	}
	if !p.DevInputReadable {
		p.Details = append(p.Details, "/dev/input is not readable; global hotkeys need membership in the input group")
	}
	if !p.UinputWritable {
		p.Details = append(p.Details, "/dev/uinput is not writable; paste-chord injection needs a udev rule")
	}
	if !p.PkexecAvailable {
		p.Details = append(p.Details, "pkexec not found; one-click permission repair is unavailable")
	}
	return p
}

func dirReadable(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	_, err = f.Readdirnames(1)
	f.Close()
	return err == nil
}

// usernamePattern gates what may be interpolated into the repair script.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// repairScript adds the user to the input group, installs a udev rule
// granting group-RW on /dev/uinput, applies an immediate ACL, and reloads
// udev. The username is validated before interpolation.
const repairScript = `set -e
usermod -aG input %q
cat > /etc/udev/rules.d/99-openflow-uinput.rules <<'RULE'
KERNEL=="uinput", GROUP="input", MODE="0660"
RULE
setfacl -m u:%s:rw /dev/uinput || true
udevadm control --reload-rules
udevadm trigger /dev/uinput || true
`

// Repair runs the privileged permission repair through pkexec. It is a
// one-shot operation; the caller decides when to prompt.
func Repair(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperrors.Newf(apperrors.InvalidArgument, "invalid username %q", username)
	}
	if !have("pkexec") {
		return apperrors.New(apperrors.Unavailable, "pkexec not found")
	}
	script := fmt.Sprintf(repairScript, username, username)
	cmd := exec.Command("pkexec", "sh", "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Unavailable, "permission repair failed: %s", string(out))
	}
	return nil
}
