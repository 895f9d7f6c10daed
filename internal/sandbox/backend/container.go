// Package backend provides the concrete Sandbox back-end implementations:
// a container-runtime REST client, a process-based micro-VM launcher, a
// full-virtualization/TEE stub, and the refuse-everything None back-end.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/byteness/zerotrust-mesh/internal/sandbox"
)

// containerSandbox mirrors the wire shape of a container-orchestration
// API's sandbox resource.
type containerSandbox struct {
	ID     string            `json:"id"`
	State  string            `json:"state"`
	Labels map[string]string `json:"labels"`
}

// Container is a REST-client-backed Backend against a local
// sandbox-orchestration API. Grounded on the 0gfoundation pack repo's
// Daytona client: an authenticated bearer-token REST client with
// get/create/stop operations over a sandbox resource, generalized here
// from a billing proxy's read path to the full create/destroy contract
// the Sandbox Manager needs.
type Container struct {
	baseURL  string
	adminKey string
	http     *http.Client
}

// NewContainer builds a Container back-end against baseURL, authenticated
// with adminKey.
func NewContainer(baseURL, adminKey string) *Container {
	return &Container{
		baseURL:  baseURL,
		adminKey: adminKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Container) Tag() string { return "container" }

func (c *Container) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.adminKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// Detect probes the orchestration API's health endpoint.
func (c *Container) Detect(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Create provisions a sandbox with the given name and resource caps.
func (c *Container) Create(ctx context.Context, name string, caps sandbox.Caps) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/sandbox", map[string]any{
		"id":        name,
		"cpuShares": caps.CPUShares,
		"memoryMiB": caps.MemoryMiB,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("container create %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// Destroy stops and removes a sandbox. Idempotent: a 404 is not an error.
func (c *Container) Destroy(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/sandbox/"+name+"/stop", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("container destroy %s: status %d", name, resp.StatusCode)
	}
	return nil
}
