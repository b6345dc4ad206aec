package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient calls the warehouse control-plane REST API.
type APIClient struct {
	host   string
	token  string
	client *http.Client
}

// NewAPIClient creates a client for the given workspace host. A bare
// hostname is reached over HTTPS; an explicit scheme is respected.
func NewAPIClient(host, token string) *APIClient {
	host = strings.TrimSuffix(host, "/")
	if host != "" && !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &APIClient{
		host:   host,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) request(ctx context.Context, method, endpoint string, payload any) (map[string]any, error) {
	if c.host == "" || c.token == "" {
		return nil, fmt.Errorf("missing warehouse API credentials")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/api/2.0/%s", c.host, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("warehouse API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("warehouse API error (status %d): %s", resp.StatusCode, string(data))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}
	return result, nil
}

// ListJobs renders the configured jobs as a markdown table.
func (c *APIClient) ListJobs(ctx context.Context) (string, error) {
	response, err := c.request(ctx, "GET", "jobs/list", nil)
	if err != nil {
		return "", err
	}

	jobs, _ := response["jobs"].([]any)
	if len(jobs) == 0 {
		return "No jobs found.", nil
	}

	var b strings.Builder
	b.WriteString("| Job ID | Job Name | Created By |\n")
	b.WriteString("| ------ | -------- | ---------- |\n")
	for _, item := range jobs {
		job, _ := item.(map[string]any)
		settings, _ := job["settings"].(map[string]any)
		fmt.Fprintf(&b, "| %s | %s | %s |\n",
			field(job, "job_id"),
			field(settings, "name"),
			field(job, "created_by"))
	}
	return b.String(), nil
}

// GetJobStatus renders the run history of one job as a markdown table.
func (c *APIClient) GetJobStatus(ctx context.Context, jobID int64) (string, error) {
	response, err := c.request(ctx, "GET", fmt.Sprintf("jobs/runs/list?job_id=%d", jobID), nil)
	if err != nil {
		return "", err
	}

	runs, _ := response["runs"].([]any)
	if len(runs) == 0 {
		return fmt.Sprintf("No runs found for job ID %d.", jobID), nil
	}

	var b strings.Builder
	b.WriteString("| Run ID | State | Start Time | End Time | Duration |\n")
	b.WriteString("| ------ | ----- | ---------- | -------- | -------- |\n")
	for _, item := range runs {
		run, _ := item.(map[string]any)
		state, _ := run["state"].(map[string]any)

		start := timestampMillis(run, "start_time")
		end := timestampMillis(run, "end_time")
		duration := "N/A"
		if start > 0 && end > 0 {
			duration = fmt.Sprintf("%.2fs", float64(end-start)/1000)
		}

		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			field(run, "run_id"),
			field(state, "result_state"),
			formatMillis(start),
			formatMillis(end),
			duration)
	}
	return b.String(), nil
}

// GetJobDetails renders one job's configuration and tasks as markdown.
func (c *APIClient) GetJobDetails(ctx context.Context, jobID int64) (string, error) {
	response, err := c.request(ctx, "GET", fmt.Sprintf("jobs/get?job_id=%d", jobID), nil)
	if err != nil {
		return "", err
	}

	settings, _ := response["settings"].(map[string]any)
	created := timestampMillis(response, "created_time")

	var b strings.Builder
	fmt.Fprintf(&b, "## Job Details: %s\n\n", field(settings, "name"))
	fmt.Fprintf(&b, "- **Job ID:** %d\n", jobID)
	fmt.Fprintf(&b, "- **Created:** %s\n", formatMillis(created))
	fmt.Fprintf(&b, "- **Creator:** %s\n\n", field(response, "creator_user_name"))

	tasks, _ := settings["tasks"].([]any)
	if len(tasks) > 0 {
		b.WriteString("### Tasks:\n\n")
		b.WriteString("| Task Key | Task Type | Description |\n")
		b.WriteString("| -------- | --------- | ----------- |\n")
		for _, item := range tasks {
			task, _ := item.(map[string]any)
			taskType := "N/A"
			for key := range task {
				if strings.HasSuffix(key, "_task") {
					taskType = key
					break
				}
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				field(task, "task_key"),
				taskType,
				field(task, "description"))
		}
	}
	return b.String(), nil
}

// GetClusterInfo renders available clusters as a markdown table.
func (c *APIClient) GetClusterInfo(ctx context.Context) (string, error) {
	response, err := c.request(ctx, "GET", "clusters/list", nil)
	if err != nil {
		return "", err
	}

	clusters, _ := response["clusters"].([]any)
	if len(clusters) == 0 {
		return "No clusters found.", nil
	}

	var b strings.Builder
	b.WriteString("## Available Clusters\n\n")
	b.WriteString("| Cluster ID | Cluster Name | State | Node Type |\n")
	b.WriteString("| ---------- | ------------ | ----- | --------- |\n")
	for _, item := range clusters {
		cluster, _ := item.(map[string]any)
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			field(cluster, "cluster_id"),
			field(cluster, "cluster_name"),
			field(cluster, "state"),
			field(cluster, "node_type_id"))
	}
	return b.String(), nil
}

func field(m map[string]any, key string) string {
	if m == nil {
		return "N/A"
	}
	value, ok := m[key]
	if !ok || value == nil {
		return "N/A"
	}
	switch v := value.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func timestampMillis(m map[string]any, key string) int64 {
	if m == nil {
		return 0
	}
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func formatMillis(millis int64) string {
	if millis == 0 {
		return "N/A"
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04:05")
}
