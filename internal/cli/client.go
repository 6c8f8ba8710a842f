package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResponse — шаг определения flow из API.
type StepResponse struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	ServiceName string         `json:"service_name,omitempty"`
	HandlerName string         `json:"handler_name,omitempty"`
	InputData   map[string]any `json:"input_data,omitempty"`
	SignalName  string         `json:"signal_name,omitempty"`
	TimerKey    string         `json:"timer_key,omitempty"`
	DelayMs     int64          `json:"delay_ms,omitempty"`
}

// FlowResponse — определение flow из API.
type FlowResponse struct {
	Name  string         `json:"name"`
	Steps []StepResponse `json:"steps"`
}

// StepStateResponse — состояние шага из API.
type StepStateResponse struct {
	Status     string         `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID         string                       `json:"id"`
	FlowName   string                       `json:"flow_name"`
	Status     string                       `json:"status"`
	Params     map[string]any               `json:"params,omitempty"`
	StepStates map[string]StepStateResponse `json:"step_states"`
	Error      string                       `json:"error,omitempty"`
	StartedAt  string                       `json:"started_at"`
	FinishedAt string                       `json:"finished_at,omitempty"`
}

// --- Request types ---

// StartRunRequest — запуск run.
type StartRunRequest struct {
	Params map[string]any `json:"params,omitempty"`
}

// SignalRequest — доставка сигнала.
type SignalRequest struct {
	RunID   string         `json:"run_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Relay API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Flows ---

// ListFlows возвращает все зарегистрированные flows.
func (c *Client) ListFlows() ([]FlowResponse, error) {
	var flows []FlowResponse
	err := c.list("/api/v1/flows", &flows)
	return flows, err
}

// GetFlow возвращает определение flow по имени.
func (c *Client) GetFlow(name string) (*FlowResponse, error) {
	var flow FlowResponse
	err := c.get("/api/v1/flows/"+name, &flow)
	return &flow, err
}

// StartRun запускает новый run для flow.
func (c *Client) StartRun(flowName string, req StartRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/flows/"+flowName+"/runs", req, &run)
	return &run, err
}

// --- Runs ---

// ListRuns возвращает все известные runs.
func (c *Client) ListRuns() ([]RunResponse, error) {
	var runs []RunResponse
	err := c.list("/api/v1/runs", &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/cancel", nil, &run)
	return &run, err
}

// --- Signals ---

// DeliverSignal доставляет именованный сигнал в run.
func (c *Client) DeliverSignal(signalName string, req SignalRequest) error {
	return c.post("/api/v1/signals/"+signalName, req, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
