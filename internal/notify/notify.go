// Package notify raises platform notifications and runs the audible alarm
// used for overdue tasks.
package notify

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

var ErrNotPermitted = errors.New("notification permission not granted")

type Notifier interface {
	Permission() Permission
	// RequestPermission asks once; later calls return the recorded decision.
	RequestPermission() Permission
	Notify(title, body string) error
}

// New builds a notifier by backend name: desktop, terminal or none.
func New(backend string, w io.Writer) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "desktop":
		return NewDesktop(), nil
	case "terminal":
		return NewTerminal(w), nil
	case "none", "disabled":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier backend %q", backend)
	}
}

// Desktop shells out to the platform notification tool. Permission is granted
// when that tool is installed.
type Desktop struct {
	mu         sync.Mutex
	permission Permission
	lookPath   func(string) (string, error)
	run        func(name string, args ...string) error
	goos       string
}

func NewDesktop() *Desktop {
	return &Desktop{
		permission: PermissionDefault,
		lookPath:   exec.LookPath,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
		goos: runtime.GOOS,
	}
}

func (d *Desktop) command(title, body string) (string, []string) {
	switch d.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return "osascript", []string{"-e", script}
	default:
		return "notify-send", []string{"--urgency=critical", "--app-name=taskalert", title, body}
	}
}

func (d *Desktop) Permission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission
}

func (d *Desktop) RequestPermission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.permission != PermissionDefault {
		return d.permission
	}
	name, _ := d.command("", "")
	if _, err := d.lookPath(name); err != nil {
		d.permission = PermissionDenied
	} else {
		d.permission = PermissionGranted
	}
	return d.permission
}

func (d *Desktop) Notify(title, body string) error {
	if d.Permission() != PermissionGranted {
		return ErrNotPermitted
	}
	name, args := d.command(title, body)
	if err := d.run(name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Terminal prints notifications as lines on w.
type Terminal struct {
	mu         sync.Mutex
	w          io.Writer
	permission Permission
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, permission: PermissionDefault}
}

func (t *Terminal) Permission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.permission
}

func (t *Terminal) RequestPermission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.permission == PermissionDefault {
		t.permission = PermissionGranted
	}
	return t.permission
}

func (t *Terminal) Notify(title, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.permission != PermissionGranted {
		return ErrNotPermitted
	}
	_, err := fmt.Fprintf(t.w, "[%s] %s\n", title, body)
	return err
}

type Disabled struct{}

func (Disabled) Permission() Permission        { return PermissionDenied }
func (Disabled) RequestPermission() Permission { return PermissionDenied }
func (Disabled) Notify(string, string) error   { return ErrNotPermitted }
