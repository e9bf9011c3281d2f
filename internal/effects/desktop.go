package effects

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"notifyd/internal/domain"
	"notifyd/internal/model"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Desktop shows native notifications. Permission is requested lazily, only
// when the user opts in.
type Desktop interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n model.Notification) error
}

// Tag identifies a notification on the desktop so a repeated push for the
// same id replaces the visible one.
func Tag(id int64) string {
	return "notification-" + strconv.FormatInt(id, 10)
}

// CommandDesktop drives a notify-send compatible command. Permission is
// granted once the command resolves on PATH. An undecided permission is
// re-checked on read, so a grant from an earlier run carries over.
type CommandDesktop struct {
	command  string
	appName  string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error

	mu         sync.Mutex
	permission Permission
	path       string
}

func NewCommandDesktop(command string) *CommandDesktop {
	return &CommandDesktop{
		command:    command,
		appName:    "notifyd",
		lookPath:   exec.LookPath,
		run:        runCommand,
		permission: PermissionDefault,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

func (d *CommandDesktop) Permission() Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.permission == PermissionDefault {
		if path, err := d.lookPath(d.command); err == nil {
			d.path = path
			d.permission = PermissionGranted
		}
	}
	return d.permission
}

func (d *CommandDesktop) RequestPermission(context.Context) (Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.permission == PermissionGranted {
		return d.permission, nil
	}
	path, err := d.lookPath(d.command)
	if err != nil {
		d.permission = PermissionDenied
		return d.permission, nil
	}
	d.path = path
	d.permission = PermissionGranted
	return d.permission, nil
}

func (d *CommandDesktop) Show(ctx context.Context, n model.Notification) error {
	permission := d.Permission()
	d.mu.Lock()
	path := d.path
	d.mu.Unlock()
	if permission != PermissionGranted {
		return domain.ErrPermissionDenied
	}

	urgency := "normal"
	expire := "10000"
	if domain.RequiresInteraction(n) {
		urgency = "critical"
		expire = "0"
	}
	args := []string{
		"--app-name=" + d.appName,
		"--urgency=" + urgency,
		"--expire-time=" + expire,
		"--hint=string:x-canonical-private-synchronous:" + Tag(n.ID),
		n.Title,
	}
	if n.Content != "" {
		args = append(args, n.Content)
	}
	return d.run(ctx, path, args...)
}
