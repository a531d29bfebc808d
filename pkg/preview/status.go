package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jzx17/resilience/pkg/classify"
)

type statusResponse struct {
	Status JobStatus `json:"status"`
}

// HTTPStatusFunc polls GET <endpoint>/<jobID> for {"status": "..."}
func HTTPStatusFunc(client *http.Client, endpoint string) (StatusFunc, error) {
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing analysis endpoint: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, jobID string) (JobStatus, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.JoinPath(jobID).String(), nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", classify.NewFault(classify.Network, fmt.Sprintf("fetching analysis status: %v", err), err)
		}
		defer resp.Body.Close()

		if err := statusError(resp, "analysis/"+jobID); err != nil {
			return "", err
		}

		var out statusResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
			return "", classify.NewFault(classify.Other, fmt.Sprintf("decoding analysis status: %v", err), err)
		}
		switch out.Status {
		case JobPending, JobProcessing, JobCompleted, JobFailed:
			return out.Status, nil
		default:
			return "", classify.NewFault(classify.Other, fmt.Sprintf("unknown analysis status %q", out.Status), nil)
		}
	}, nil
}
