package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DataDogExporter posts the snapshot to the DataDog v1 series API.
type DataDogExporter struct {
	apiKey  string
	site    string // e.g., "datadoghq.com", "datadoghq.eu"
	baseURL string
	tags    []string
	prefix  string
	client  *http.Client
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogBaseURL replaces https://api.<site>.
func WithDataDogBaseURL(u string) DataDogOption {
	return func(d *DataDogExporter) {
		d.baseURL = u
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// WithDataDogPrefix sets a prefix for metric names
func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

func WithDataDogHTTPClient(c *http.Client) DataDogOption {
	return func(d *DataDogExporter) {
		d.client = c
	}
}

// NewDataDogExporter falls back to DD_API_KEY when no key is given.
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:   "datadoghq.com",
		prefix: "apicontract",
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	return d
}

func (d *DataDogExporter) Name() string {
	return "datadog"
}

type datadogMetric struct {
	Metric string      `json:"metric"`
	Type   string      `json:"type"`
	Points [][]float64 `json:"points"`
	Tags   []string    `json:"tags,omitempty"`
}

type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

func (d *DataDogExporter) Export(ctx context.Context, s *Snapshot) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}
	return d.sendMetrics(ctx, d.series(s))
}

func (d *DataDogExporter) series(s *Snapshot) []datadogMetric {
	now := float64(s.Time.Unix())
	point := func(name, kind string, v float64, tags ...string) datadogMetric {
		return datadogMetric{
			Metric: d.prefix + "." + name,
			Type:   kind,
			Points: [][]float64{{now, v}},
			Tags:   append(tags, d.tags...),
		}
	}

	var series []datadogMetric
	for _, m := range s.Suites {
		tag := "suite:" + m.Suite
		series = append(series,
			point("cases.passed", "gauge", float64(m.Passed), tag),
			point("cases.failed", "gauge", float64(m.Failed), tag),
			point("cases.skipped", "gauge", float64(m.Skipped), tag),
			point("cases.aborted", "gauge", float64(m.Aborted), tag),
			point("run.exit_code", "gauge", float64(m.ExitCode), tag),
			point("run.duration", "gauge", m.DurationMs, tag),
			point("response_time.p95", "gauge", m.P95Ms, tag),
		)
	}
	for _, c := range s.Cases {
		if c.StatusCode == 0 {
			continue
		}
		series = append(series, point("case.duration", "gauge", c.DurationMs,
			"suite:"+c.Suite, "case:"+c.Case, "outcome:"+c.Outcome, fmt.Sprintf("status:%d", c.StatusCode)))
	}
	return series
}

func (d *DataDogExporter) sendMetrics(ctx context.Context, series []datadogMetric) error {
	jsonData, err := json.Marshal(datadogPayload{Series: series})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	base := d.baseURL
	if base == "" {
		base = fmt.Sprintf("https://api.%s", d.site)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/series", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("DataDog API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
