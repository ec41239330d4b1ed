package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"videopipe/internal/api"
	"videopipe/internal/jobs"
	"videopipe/internal/notify"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job until it is published or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return followJob(cmd, client, strings.TrimSpace(args[0]))
			})
		},
	}
}

// progressRenderer draws job snapshots as they arrive.
type progressRenderer interface {
	Update(evt notify.Event)
	Finish()
}

// followJob long-polls the daemon for snapshots of id and returns an error
// when the job ends in ERROR.
func followJob(cmd *cobra.Command, client *api.Client, id string) error {
	out := cmd.OutOrStdout()
	var renderer progressRenderer
	if shouldColorize(out) {
		renderer = newBarRenderer(out)
	} else {
		renderer = &lineRenderer{out: out}
	}

	var since uint64
	for {
		resp, err := client.Events(cmd.Context(), id, since, true)
		if api.IsNotFound(err) {
			// The hub forgot the job; fall back to its stored state.
			renderer.Finish()
			job, getErr := client.GetJob(cmd.Context(), id)
			if getErr != nil {
				return fmt.Errorf("%w: %s", errJobNotFound, id)
			}
			return reportOutcome(out, id, job.Status, job.PublishedURL, job.ErrorReason)
		}
		if err != nil {
			renderer.Finish()
			return err
		}
		for _, evt := range resp.Events {
			renderer.Update(evt)
			if evt.Terminal() {
				renderer.Finish()
				return reportOutcome(out, id, string(evt.Status), evt.PublishedURL, evt.ErrorReason)
			}
		}
		if resp.Next > since {
			since = resp.Next
		}
		if resp.Terminal {
			renderer.Finish()
			job, err := client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return reportOutcome(out, id, job.Status, job.PublishedURL, job.ErrorReason)
		}
	}
}

func reportOutcome(out io.Writer, id, status, url, reason string) error {
	switch jobs.Status(status) {
	case jobs.StatusPublished:
		fmt.Fprintf(out, "Published: %s\n", url)
		return nil
	case jobs.StatusError:
		return fmt.Errorf("job %s failed: %s", id, reason)
	default:
		fmt.Fprintf(out, "Job %s is %s\n", id, status)
		return nil
	}
}

type barRenderer struct {
	bar *progressbar.ProgressBar
}

func newBarRenderer(out io.Writer) *barRenderer {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetDescription(string(jobs.StatusPending)),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
	return &barRenderer{bar: bar}
}

func (r *barRenderer) Update(evt notify.Event) {
	r.bar.Describe(fmt.Sprintf("%-20s", evt.Status))
	_ = r.bar.Set(evt.ProgressPercent)
}

func (r *barRenderer) Finish() {
	if r.bar.IsFinished() {
		return
	}
	_ = r.bar.Finish()
}

// lineRenderer prints one line per status or progress change.
type lineRenderer struct {
	out      io.Writer
	status   jobs.Status
	progress int
	printed  bool
}

func (r *lineRenderer) Update(evt notify.Event) {
	if r.printed && evt.Status == r.status && evt.ProgressPercent == r.progress {
		return
	}
	r.status, r.progress, r.printed = evt.Status, evt.ProgressPercent, true
	fmt.Fprintf(r.out, "%s %s\n", evt.Status, formatPercent(evt.ProgressPercent))
}

func (r *lineRenderer) Finish() {}
