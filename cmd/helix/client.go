package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helix-run/helix/internal/jobbus"
)

// apiClient talks to a running helixd over the HTTP facade (spec §6).
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) Execute(ctx context.Context, projectPath, phaseFilter string) (jobbus.Job, error) {
	body, _ := json.Marshal(map[string]string{"project_path": projectPath, "phase_filter": phaseFilter})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/execute", bytes.NewReader(body))
	if err != nil {
		return jobbus.Job{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var job jobbus.Job
	return job, c.doJSON(req, &job)
}

func (c *apiClient) ListJobs(ctx context.Context, limit int) ([]jobbus.Job, error) {
	u := c.base + "/jobs"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var jobs []jobbus.Job
	return jobs, c.doJSON(req, &jobs)
}

func (c *apiClient) GetJob(ctx context.Context, id string) (jobbus.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return jobbus.Job{}, err
	}
	var job jobbus.Job
	return job, c.doJSON(req, &job)
}

func (c *apiClient) CancelJob(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cancel %s: unexpected status %d", id, resp.StatusCode)
	}
	return nil
}

// Stream connects to /stream/{id} and invokes onEvent for every event
// until the server closes the connection or ctx is cancelled.
func (c *apiClient) Stream(ctx context.Context, id string, onEvent func(jobbus.PhaseEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/stream/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream %s: unexpected status %d", id, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		case line == "" && dataLine != "":
			var event jobbus.PhaseEvent
			if err := json.Unmarshal([]byte(dataLine), &event); err == nil {
				onEvent(event)
			}
			dataLine = ""
		}
	}
	return scanner.Err()
}

func (c *apiClient) doJSON(req *http.Request, out any) error {
	diag.Debug("request", "method", req.Method, "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
