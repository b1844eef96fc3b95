package handlers

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
	logx "notifyd/pkg/logx"
)

var ErrEmptyCommand = errors.New("empty command descriptor")

// Runner executes a program.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec and returns combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type CommandOptions struct {
	// Exec runs the expanded command. When false the handler only logs it.
	Exec    bool
	Timeout time.Duration
	Runner  Runner
}

// CommandEvent is the Data of command.* bus events.
type CommandEvent struct {
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommandHandler expands ${key} placeholders in the command descriptor from
// the notification's command arguments and runs the result in the
// background. The descriptor is split on whitespace; no shell is involved.
type CommandHandler struct {
	toggle

	log logx.Logger
	bus eventbus.Bus
	sup *rtsup.Supervisor

	mu   sync.Mutex
	opts CommandOptions
}

func NewCommand(sup *rtsup.Supervisor, opts CommandOptions, log logx.Logger, bus eventbus.Bus) *CommandHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &CommandHandler{toggle: toggle{kind: notification.KindCommand}, log: log, bus: bus, sup: sup}
	h.Apply(opts)
	return h
}

func (h *CommandHandler) Apply(opts CommandOptions) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	h.mu.Lock()
	h.opts = opts
	h.mu.Unlock()
}

func (h *CommandHandler) Execute(a *notification.CommandAction, cmdargs map[string]string) error {
	if !h.Enabled() {
		return nil
	}
	line := strings.TrimSpace(ExpandCommand(a.Descriptor, cmdargs))
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}

	h.mu.Lock()
	opts := h.opts
	h.mu.Unlock()

	if !opts.Exec {
		h.log.Info("command (exec disabled)", logx.String("command", line))
		publish(h.bus, TopicCommandDone, CommandEvent{Command: line})
		return nil
	}

	h.sup.Go("command.run", func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		out, err := opts.Runner.Run(cctx, fields[0], fields[1:]...)
		ev := CommandEvent{Command: line, Output: strings.TrimSpace(string(out))}
		if err != nil {
			ev.Error = err.Error()
			h.log.Warn("command failed", logx.String("command", line), logx.String("output", ev.Output), logx.Err(err))
			publish(h.bus, TopicCommandFailed, ev)
			// Failures are reported on the bus; they must not poison the supervisor.
			return nil
		}
		h.log.Debug("command done", logx.String("command", line))
		publish(h.bus, TopicCommandDone, ev)
		return nil
	})
	return nil
}

var placeholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandCommand replaces ${key} with args[key]. Unknown keys are left as is.
func ExpandCommand(descriptor string, args map[string]string) string {
	if len(args) == 0 || !strings.Contains(descriptor, "${") {
		return descriptor
	}
	return placeholderRe.ReplaceAllStringFunc(descriptor, func(m string) string {
		key := m[2 : len(m)-1]
		if v, ok := args[key]; ok {
			return v
		}
		return m
	})
}
