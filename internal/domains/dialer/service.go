// Package dialer places outbound calls through the carrier's REST API and
// paces campaign runs so numbers are not dialed in a burst.
package dialer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/Logger"
)

type Service struct {
	cfg        config.DialerConfig
	publicHost string
	store      call.Store
	logger     *Logger.Logger
	client     *http.Client
}

func New(cfg config.DialerConfig, publicHost string, store call.Store, logger *Logger.Logger) *Service {
	return &Service{
		cfg:        cfg,
		publicHost: publicHost,
		store:      store,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type createCallResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Dial places one outbound call. Numbers on the do-not-call list are
// refused here as the last line of defense, whatever the caller intended.
func (s *Service) Dial(ctx context.Context, phone, persona, greeting string) (string, error) {
	dnc, err := s.store.IsDoNotCall(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("dnc check: %w", err)
	}
	if dnc {
		return "", fmt.Errorf("dialer: %s is on the do-not-call list", phone)
	}

	answer := url.URL{
		Scheme: "https",
		Host:   s.publicHost,
		Path:   "/calls/answer",
		RawQuery: url.Values{
			"phone":    {phone},
			"persona":  {persona},
			"greeting": {greeting},
		}.Encode(),
	}
	form := url.Values{
		"To":   {phone},
		"From": {s.cfg.From},
		"Url":  {answer.String()},
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", strings.TrimRight(s.cfg.APIBase, "/"), s.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("dialer: build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("dialer: carrier request: %w", err)
	}
	defer resp.Body.Close()

	var out createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("dialer: decode carrier response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("dialer: carrier rejected call (%d): %s", resp.StatusCode, out.Message)
	}

	s.logger.Infof("placed call sid=%s to=%s", out.Sid, phone)
	return out.Sid, nil
}

// RunCampaign dials every stored lead that has no disposition yet, one
// call per pacing interval. It returns the number of calls placed.
func (s *Service) RunCampaign(ctx context.Context, persona, greeting string) (int, error) {
	leads, err := s.store.ListLeads(ctx)
	if err != nil {
		return 0, fmt.Errorf("dialer: list leads: %w", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	placed := 0
	first := true
	for _, lead := range leads {
		if lead.DoNotCall || lead.Outcome != "" {
			continue
		}
		// Pace between calls only; the last call must not cost an
		// extra idle interval before the campaign returns.
		if !first {
			select {
			case <-ctx.Done():
				return placed, ctx.Err()
			case <-ticker.C:
			}
		}
		first = false
		if _, err := s.Dial(ctx, lead.Phone, persona, greeting); err != nil {
			s.logger.Warnf("campaign dial %s failed: %v", lead.Phone, err)
		} else {
			placed++
		}
	}
	return placed, nil
}
