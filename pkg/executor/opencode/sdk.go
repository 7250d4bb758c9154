// sdk.go is a minimal client for the OpenCode server's HTTP API. Every
// request is scoped to a directory and authenticated with the per-spawn
// server password.
package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/cexll/agentexec-go/pkg/discovery"
)

const serverUsername = "opencode"

type client struct {
	http      *http.Client
	baseURL   string
	directory string
	password  string
}

func newClient(baseURL, directory, password string) *client {
	return &client{
		http:      &http.Client{Timeout: 10 * time.Minute},
		baseURL:   baseURL,
		directory: directory,
		password:  password,
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	u := c.baseURL + path + "?directory=" + url.QueryEscape(c.directory)
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("opencode: encode %s body: %w", path, err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("opencode: build %s request: %w", path, err)
	}
	req.SetBasicAuth(serverUsername, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opencode: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("opencode: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opencode: decode %s response: %w", path, err)
	}
	return nil
}

type providerModel struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	ReleaseDate string                     `json:"release_date"`
	Variants    map[string]json.RawMessage `json:"variants"`
}

type providerEntry struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Models map[string]providerModel `json:"models"`
}

type providersResponse struct {
	All       []providerEntry `json:"all"`
	Connected []string        `json:"connected"`
}

func (c *client) providers(ctx context.Context) (providersResponse, error) {
	var out providersResponse
	err := c.do(ctx, http.MethodGet, "/config/providers", nil, &out)
	return out, err
}

type agentEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *client) agents(ctx context.Context) ([]agentEntry, error) {
	var out []agentEntry
	err := c.do(ctx, http.MethodGet, "/agent", nil, &out)
	return out, err
}

type commandEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *client) commands(ctx context.Context) ([]commandEntry, error) {
	var out []commandEntry
	err := c.do(ctx, http.MethodGet, "/command", nil, &out)
	return out, err
}

func (c *client) defaultModel(ctx context.Context) (string, error) {
	var out struct {
		Model string `json:"model"`
	}
	err := c.do(ctx, http.MethodGet, "/config", nil, &out)
	return out.Model, err
}

func (c *client) createSession(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/session", map[string]any{}, &out)
	return out.ID, err
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
	State struct {
		Status string          `json:"status"`
		Input  json.RawMessage `json:"input"`
		Output string          `json:"output"`
		Error  string          `json:"error"`
	} `json:"state,omitempty"`
}

type messageResponse struct {
	Info struct {
		Error json.RawMessage `json:"error"`
	} `json:"info"`
	Parts []messagePart `json:"parts"`
}

type modelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// sendMessage submits one prompt turn and blocks until the assistant message
// completes. model is the "provider_id/model_id" form.
func (c *client) sendMessage(ctx context.Context, sessionID, text, model, agent, variant string) (messageResponse, error) {
	body := map[string]any{
		"parts": []map[string]any{{"type": "text", "text": text}},
	}
	if providerID, modelID, ok := splitModel(model); ok {
		body["model"] = modelRef{ProviderID: providerID, ModelID: modelID}
	}
	if agent != "" {
		body["agent"] = agent
	}
	if variant != "" {
		body["variant"] = variant
	}
	var out messageResponse
	err := c.do(ctx, http.MethodPost, "/session/"+sessionID+"/message", body, &out)
	return out, err
}

func splitModel(model string) (providerID, modelID string, ok bool) {
	if model == "" {
		return "", "", false
	}
	for i := 0; i < len(model); i++ {
		if model[i] == '/' {
			return model[:i], model[i+1:], true
		}
	}
	return "", model, true
}

// transformModels orders a provider's models newest release first and maps
// variant names to reasoning options.
func transformModels(models map[string]providerModel, providerID string) []discovery.ModelInfo {
	ordered := make([]providerModel, 0, len(models))
	for _, m := range models {
		ordered = append(ordered, m)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.ReleaseDate != "" && b.ReleaseDate != "":
			return a.ReleaseDate > b.ReleaseDate
		case a.ReleaseDate != "":
			return true
		case b.ReleaseDate != "":
			return false
		default:
			return a.Name < b.Name
		}
	})

	out := make([]discovery.ModelInfo, 0, len(ordered))
	for _, m := range ordered {
		var reasoning []discovery.ReasoningOption
		if len(m.Variants) > 0 {
			names := make([]string, 0, len(m.Variants))
			for name := range m.Variants {
				names = append(names, name)
			}
			sort.Strings(names)
			reasoning = discovery.ReasoningOptionsFromNames(names...)
		}
		out = append(out, discovery.ModelInfo{
			ID:               m.ID,
			Name:             m.Name,
			ProviderID:       providerID,
			ReasoningOptions: reasoning,
		})
	}
	return out
}
