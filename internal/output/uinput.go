package output

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux input event and uinput ioctl constants (linux/input-event-codes.h,
// linux/uinput.h). Only the subset needed for a synthetic paste-chord
// keyboard is declared.
const (
	evSyn = 0x00
	evKey = 0x01

	synReport = 0

	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyV         = 47

	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	keyDown = 1
	keyUp   = 0
)

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// uinputKeyboard is a process-owned virtual keyboard device, created once at
// startup and kept for the process lifetime.
type uinputKeyboard struct {
	mu sync.Mutex
	fd int
}

func newUinputKeyboard() (*uinputKeyboard, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}
	k := &uinputKeyboard{fd: fd}
	if err := k.setup(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return k, nil
}

func (k *uinputKeyboard) ioctl(req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(k.fd), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func (k *uinputKeyboard) setup() error {
	if err := k.ioctl(uiSetEvBit, uintptr(evKey)); err != nil {
		return fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err)
	}
	for _, code := range []uintptr{keyLeftCtrl, keyLeftShift, keyV} {
		if err := k.ioctl(uiSetKeyBit, code); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	// uinput_setup: struct input_id id; char name[UINPUT_MAX_NAME_SIZE]; __u32 ff_effects_max;
	var setup struct {
		BusType uint16
		Vendor  uint16
		Product uint16
		Version uint16
		Name    [80]byte
		FFMax   uint32
	}
	copy(setup.Name[:], "openflow-dictation-paste")
	setup.BusType = unix.BUS_USB

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(k.fd), uintptr(0x405c5503) /* UI_DEV_SETUP */, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		return fmt.Errorf("UI_DEV_SETUP: %w", errno)
	}
	if err := k.ioctl(uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	// Give the kernel a moment to register the node before the first event.
	time.Sleep(20 * time.Millisecond)
	return nil
}

func (k *uinputKeyboard) emit(code uint16, value int32) error {
	ev := inputEvent{Type: evKey, Code: code, Value: value}
	if err := k.write(ev); err != nil {
		return err
	}
	return k.write(inputEvent{Type: evSyn, Code: synReport, Value: 0})
}

func (k *uinputKeyboard) write(ev inputEvent) error {
	buf := (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:]
	_, err := unix.Write(k.fd, buf)
	return err
}

func (k *uinputKeyboard) pressChord(shortcut PasteShortcut) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	mods := []uint16{keyLeftCtrl}
	if shortcut == ShortcutCtrlShiftV {
		mods = append(mods, keyLeftShift)
	}

	for _, m := range mods {
		if err := k.emit(m, keyDown); err != nil {
			return err
		}
	}
	if err := k.emit(keyV, keyDown); err != nil {
		return err
	}
	time.Sleep(keyEventDelay)
	if err := k.emit(keyV, keyUp); err != nil {
		return err
	}
	for i := len(mods) - 1; i >= 0; i-- {
		if err := k.emit(mods[i], keyUp); err != nil {
			return err
		}
	}
	return nil
}

func (k *uinputKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ioctl(uiDevDestroy, 0)
	return os.NewFile(uintptr(k.fd), "/dev/uinput").Close()
}
