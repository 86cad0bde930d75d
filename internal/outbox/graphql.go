package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"example.com/taskform/internal/store"
)

// GraphQLExecutor posts entries to a GraphQL endpoint. A 2xx response
// carrying an errors array still counts as a failed delivery.
type GraphQLExecutor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewGraphQLExecutor constructs a GraphQLExecutor.
func NewGraphQLExecutor(endpoint, apiKey string, timeout time.Duration) *GraphQLExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GraphQLExecutor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Deliver posts the entry's document and variables as one mutation.
func (e *GraphQLExecutor) Deliver(ctx context.Context, entry store.OutboxEntry) error {
	body, err := json.Marshal(graphQLRequest{Query: entry.Document, Variables: entry.Variables})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-request-id", uuid.NewString())
	if e.apiKey != "" {
		req.Header.Set("x-api-key", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("graphql endpoint returned %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", decoded.Errors[0].Message)
	}
	return nil
}
