package warehouse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func apiServer(t *testing.T, routes map[string]string) (*APIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return NewAPIClient(server.URL, "test-token"), server
}

func TestAPIClient_ListJobs(t *testing.T) {
	client, _ := apiServer(t, map[string]string{
		"/api/2.0/jobs/list": `{"jobs":[
			{"job_id":12345,"created_by":"amy@example.com","settings":{"name":"nightly-etl"}},
			{"job_id":67890,"settings":{}}
		]}`,
	})

	out, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if !strings.Contains(out, "| 12345 | nightly-etl | amy@example.com |") {
		t.Errorf("output missing job row:\n%s", out)
	}
	if !strings.Contains(out, "| 67890 | N/A | N/A |") {
		t.Errorf("missing fields should render as N/A:\n%s", out)
	}
}

func TestAPIClient_ListJobs_Empty(t *testing.T) {
	client, _ := apiServer(t, map[string]string{
		"/api/2.0/jobs/list": `{}`,
	})

	out, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if out != "No jobs found." {
		t.Errorf("output = %q", out)
	}
}

func TestAPIClient_GetJobStatus(t *testing.T) {
	client, _ := apiServer(t, map[string]string{
		"/api/2.0/jobs/runs/list": `{"runs":[
			{"run_id":1,"state":{"result_state":"SUCCESS"},"start_time":1700000000000,"end_time":1700000004500}
		]}`,
	})

	out, err := client.GetJobStatus(context.Background(), 12345)
	if err != nil {
		t.Fatalf("GetJobStatus() error = %v", err)
	}
	if !strings.Contains(out, "SUCCESS") {
		t.Errorf("state missing:\n%s", out)
	}
	if !strings.Contains(out, "4.50s") {
		t.Errorf("duration missing:\n%s", out)
	}
}

func TestAPIClient_GetClusterInfo(t *testing.T) {
	client, _ := apiServer(t, map[string]string{
		"/api/2.0/clusters/list": `{"clusters":[
			{"cluster_id":"abc-123","cluster_name":"analytics","state":"RUNNING","node_type_id":"m5.xlarge"}
		]}`,
	})

	out, err := client.GetClusterInfo(context.Background())
	if err != nil {
		t.Fatalf("GetClusterInfo() error = %v", err)
	}
	if !strings.Contains(out, "| abc-123 | analytics | RUNNING | m5.xlarge |") {
		t.Errorf("output:\n%s", out)
	}
}

func TestAPIClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusForbidden)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "bad-token")
	_, err := client.ListJobs(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want status 403", err)
	}
}

func TestAPIClient_MissingCredentials(t *testing.T) {
	client := NewAPIClient("", "")
	if _, err := client.ListJobs(context.Background()); err == nil {
		t.Error("expected error for missing credentials")
	}
}
