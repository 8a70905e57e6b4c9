package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"

	"datapipe/console/internal/bus"
	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
)

var (
	// ErrUnknownType reports a job type outside the configured script map.
	ErrUnknownType = errors.New("no script configured for job type")
	// ErrScriptNotFound reports a configured script missing on this host.
	ErrScriptNotFound = errors.New("script not found")
)

// Runner executes claimed jobs: it resolves the job type to a script,
// builds the argument list and runs the script as a child process. After
// the process exits a completion signal is published, whatever the exit
// status. Resolution and spawn failures never signal, so a viewer cannot
// see a false "done".
type Runner struct {
	scripts map[jobs.Type]string
	bus     *bus.Bus
	channel string
}

// New returns a Runner publishing completion signals on channel.
func New(scripts map[jobs.Type]string, b *bus.Bus, channel string) *Runner {
	return &Runner{scripts: scripts, bus: b, channel: channel}
}

// Run executes one job to completion.
func (r *Runner) Run(ctx context.Context, job jobs.Job) error {
	script, ok := r.scripts[job.Type]
	if !ok || script == "" {
		return fmt.Errorf("%w: %s", ErrUnknownType, job.Type)
	}
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%w: %s", ErrScriptNotFound, script)
	}

	cmd := exec.CommandContext(ctx, script, params.Marshal(job.Params)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start script %s: %w", script, err)
	}
	if err := cmd.Wait(); err != nil {
		// Exit status does not change signaling; the script owns its own
		// error reporting.
		log.Printf("job %s: script exited: %v", job.ID, err)
	}

	if err := r.bus.Publish(ctx, r.channel, job.ID); err != nil {
		return fmt.Errorf("signal completion for %s: %w", job.ID, err)
	}
	return nil
}
