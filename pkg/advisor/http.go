package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"ovtrader/pkg/market"
)

// HTTP calls a remote advisory service over REST. Responses are treated as
// model output: malformed JSON is repaired before decoding.
type HTTP struct {
	client *resty.Client
	log    *zap.Logger
}

// NewHTTP builds an HTTP advisor against baseURL, authenticating with the
// given bearer token.
func NewHTTP(baseURL, token string, logger *zap.Logger) *HTTP {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTP{client: client, log: logger}
}

type evaluateRequest struct {
	Symbol  string         `json:"symbol"`
	Summary market.Summary `json:"summary"`
	Setup   *market.Setup  `json:"setup,omitempty"`
}

// Evaluate posts the snapshot and setup to the advisory service. Transport
// failures and server errors wrap ErrUnavailable.
func (h *HTTP) Evaluate(ctx context.Context, symbol string, sum market.Summary, setup *market.Setup) (Signal, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(evaluateRequest{Symbol: symbol, Summary: sum, Setup: setup}).
		Post("/v1/analyze")
	if err != nil {
		return Signal{}, fmt.Errorf("advisor request for %s: %w", symbol, ErrUnavailable)
	}
	if resp.StatusCode() >= 500 {
		return Signal{}, fmt.Errorf("advisor returned %d for %s: %w", resp.StatusCode(), symbol, ErrUnavailable)
	}
	if resp.StatusCode() != 200 {
		return Signal{}, fmt.Errorf("advisor returned %d for %s", resp.StatusCode(), symbol)
	}

	sig, err := decodeSignal(resp.Body())
	if err != nil {
		h.log.Warn("unparseable advisor response", zap.String("symbol", symbol), zap.Error(err))
		return Signal{}, fmt.Errorf("advisor response for %s: %w", symbol, ErrUnavailable)
	}
	if sig.Symbol == "" {
		sig.Symbol = symbol
	}
	if sig.SetupType == "" && setup != nil {
		sig.SetupType = string(setup.Type)
	}
	return sig, nil
}

// decodeSignal parses the advisor body, running it through jsonrepair first
// when strict decoding fails.
func decodeSignal(body []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(body, &sig); err == nil {
		return sig, nil
	}
	repaired, err := jsonrepair.JSONRepair(string(body))
	if err != nil {
		return Signal{}, fmt.Errorf("repair: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &sig); err != nil {
		return Signal{}, fmt.Errorf("decode repaired body: %w", err)
	}
	return sig, nil
}
