// Package emissions fetches the global emission schedule for a token from the
// indexer that tracks on-chain unlocks.
package emissions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/onemorebsmith/launchpad-claims/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Client struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

func NewClient(base string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: httpClient,
		logger: logger.Named("emissions"),
	}
}

type emissionResponse struct {
	AvailableToClaim string `json:"availableToClaim"`
	MaxClaimableNow  string `json:"maxClaimableNow"`
}

// GetGlobalEmissionState returns the current unlock snapshot. Amounts come back
// as decimal strings in the token's smallest unit.
func (c *Client) GetGlobalEmissionState(ctx context.Context, tokenAddress string, launchTime time.Time) (*model.GlobalEmissionState, error) {
	u := c.base + "/emissions/" + url.PathEscape(tokenAddress) +
		"?launchTime=" + strconv.FormatInt(launchTime.Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed building emission request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching emissions for %s", tokenAddress)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("emission oracle %d: %s", resp.StatusCode, string(b))
	}
	var out emissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed decoding emission state")
	}
	max, err := parseAmount(out.MaxClaimableNow)
	if err != nil {
		return nil, errors.Wrap(err, "bad maxClaimableNow")
	}
	available, err := parseAmount(out.AvailableToClaim)
	if err != nil {
		return nil, errors.Wrap(err, "bad availableToClaim")
	}
	if available.Gt(max) {
		c.logger.Warn("oracle reported more available than unlocked, clamping",
			zap.String("token", tokenAddress),
			zap.String("available", available.Dec()),
			zap.String("max", max.Dec()))
		available.Set(max)
	}
	return &model.GlobalEmissionState{MaxClaimableNow: max, AvailableToClaim: available}, nil
}

// parseAmount accepts integer strings and truncates any fractional part
func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uint256.NewInt(0), nil
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
		if raw == "" {
			raw = "0"
		}
	}
	return uint256.FromDecimal(raw)
}

// StaticOracle serves fixed snapshots, used for local runs without an indexer.
type StaticOracle struct {
	mu     sync.RWMutex
	states map[string]model.GlobalEmissionState
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{states: map[string]model.GlobalEmissionState{}}
}

func (o *StaticOracle) Set(tokenAddress string, max, available *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[tokenAddress] = model.GlobalEmissionState{
		MaxClaimableNow:  new(uint256.Int).Set(max),
		AvailableToClaim: new(uint256.Int).Set(available),
	}
}

func (o *StaticOracle) GetGlobalEmissionState(_ context.Context, tokenAddress string, _ time.Time) (*model.GlobalEmissionState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.states[tokenAddress]
	if !ok {
		return &model.GlobalEmissionState{MaxClaimableNow: uint256.NewInt(0), AvailableToClaim: uint256.NewInt(0)}, nil
	}
	return &model.GlobalEmissionState{
		MaxClaimableNow:  new(uint256.Int).Set(state.MaxClaimableNow),
		AvailableToClaim: new(uint256.Int).Set(state.AvailableToClaim),
	}, nil
}
