package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/pkg/circuitbreaker"
	"github.com/yachtops/pms-backend/pkg/logger"
	"github.com/yachtops/pms-backend/pkg/retry"
)

// HTTPResolver verifies tokens against the fleet auth service. Failures of
// the auth service must not cascade, so calls run behind a circuit breaker.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	cb      *circuitbreaker.Breaker
	policy  retry.Policy
}

func NewHTTPResolver(baseURL string, timeoutSec int) *HTTPResolver {
	if timeoutSec <= 0 {
		timeoutSec = 5
	}

	cb := circuitbreaker.New("auth", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         15 * time.Second,
		HalfOpenProbes:   5,
		Logger:           logger.GetLogger(),
	})

	policy := retry.Policy{
		Attempts:  2,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Logger:    logger.GetLogger(),
	}

	logger.Info("Auth resolver initialized", zap.String("base_url", baseURL))

	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		cb:      cb,
		policy:  policy,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	var identity Identity

	err := r.cb.Execute(ctx, func() error {
		return r.policy.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/verify", nil)
			if err != nil {
				return fmt.Errorf("failed to build verify request: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := r.client.Do(req)
			if err != nil {
				return fmt.Errorf("auth service unreachable: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return retry.Permanent(ErrUnauthorized)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("auth service returned %d", resp.StatusCode)
			}

			var body struct {
				YachtID string `json:"yacht_id"`
				UserID  string `json:"user_id"`
				Role    string `json:"role"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode auth response: %w", err)
			}
			if body.YachtID == "" {
				return retry.Permanent(ErrUnauthorized)
			}

			identity = Identity{
				YachtID: body.YachtID,
				UserID:  body.UserID,
				Role:    Role(body.Role),
			}
			return nil
		})
	})

	if err != nil {
		return Identity{}, err
	}
	return identity, nil
}
