package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"indexcover/internal/types"
)

// ObservationProvider fetches weather series from an upstream data vendor.
type ObservationProvider interface {
	FetchObservations(ctx context.Context, req ObservationRequest) ([]types.WeatherDataPoint, error)
}

// ObservationRequest selects one homogeneous series from the provider.
type ObservationRequest struct {
	RegionCode      string
	WeatherType     types.WeatherType
	DataType        types.DataType
	Start           time.Time
	End             time.Time
	PredictionRunID *string
}

// WeatherAPIClient talks to the upstream weather data API. It embeds
// BaseClient for resilience and maps the vendor payload onto domain points.
type WeatherAPIClient struct {
	*BaseClient
	baseURL string
	apiKey  string
}

// NewWeatherAPIClient creates a provider client rooted at baseURL.
func NewWeatherAPIClient(base *BaseClient, baseURL, apiKey string) *WeatherAPIClient {
	return &WeatherAPIClient{
		BaseClient: base,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

var _ ObservationProvider = (*WeatherAPIClient)(nil)

// observationsResponse is the vendor wire format. Values arrive as JSON
// numbers and land in decimal.Decimal without a float64 detour.
type observationsResponse struct {
	Observations []types.WeatherDataPoint `json:"observations"`
}

// FetchObservations retrieves the series for the request. Timestamps are
// sent and expected in UTC; the vendor echoes region and type on every
// point, which is validated before the series is handed to callers.
func (c *WeatherAPIClient) FetchObservations(ctx context.Context, req ObservationRequest) ([]types.WeatherDataPoint, error) {
	endpoint, err := url.Parse(c.baseURL + "/v1/observations")
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "invalid weather API base URL", err)
	}

	q := endpoint.Query()
	q.Set("region", req.RegionCode)
	q.Set("weather_type", string(req.WeatherType))
	q.Set("data_type", string(req.DataType))
	q.Set("start", req.Start.UTC().Format(time.RFC3339))
	q.Set("end", req.End.UTC().Format(time.RFC3339))
	if req.PredictionRunID != nil {
		q.Set("prediction_run_id", *req.PredictionRunID)
	}
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather API request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather API returned %d", resp.StatusCode), nil,
			map[string]any{"body": string(body)})
	}

	var payload observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
			"failed to decode weather API response", err)
	}

	for i, p := range payload.Observations {
		if p.RegionCode != req.RegionCode || p.WeatherType != req.WeatherType || p.DataType != req.DataType {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
				"weather API returned a point outside the requested series", nil,
				map[string]any{
					"index":        i,
					"region_code":  p.RegionCode,
					"weather_type": string(p.WeatherType),
					"data_type":    string(p.DataType),
				})
		}
		payload.Observations[i].Timestamp = p.Timestamp.UTC()
	}
	return payload.Observations, nil
}
