package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"videopipe/internal/api"
	"videopipe/internal/jobs"
)

var errJobNotFound = errors.New("job not found")

// jobsAPI is the read-only surface shared by the daemon client and the
// job database.
type jobsAPI interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Get(ctx context.Context, id string) (api.Job, error)
}

// --- HTTP adapter ---

type jobsClientAdapter struct {
	client *api.Client
}

func (a *jobsClientAdapter) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Pipeline.JobStats, nil
}

func (a *jobsClientAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.client.ListJobs(ctx, statuses...)
}

func (a *jobsClientAdapter) Get(ctx context.Context, id string) (api.Job, error) {
	job, err := a.client.GetJob(ctx, id)
	if api.IsNotFound(err) {
		return api.Job{}, fmt.Errorf("%w: %s", errJobNotFound, id)
	}
	return job, err
}

// --- store adapter ---

type jobsStoreAdapter struct {
	store *jobs.Store
}

func (a *jobsStoreAdapter) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}

func (a *jobsStoreAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	parsed, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	list, err := a.store.List(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(list), nil
}

func (a *jobsStoreAdapter) Get(ctx context.Context, id string) (api.Job, error) {
	job, err := a.store.Get(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		return api.Job{}, fmt.Errorf("%w: %s", errJobNotFound, id)
	}
	if err != nil {
		return api.Job{}, err
	}
	return api.FromJob(job), nil
}

func parseStatuses(values []string) ([]jobs.Status, error) {
	var out []jobs.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(part))
			}
			out = append(out, status)
		}
	}
	return out, nil
}
