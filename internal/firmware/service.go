package firmware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/tgpanel/core/internal/infrastructure/config"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxResponseBytes    = 4 << 20

	// UnknownVersion is reported when a file name carries no version.
	UnknownVersion = "unknown"

	pipelineSuccessful = "SUCCESSFUL"
)

// versionPattern matches the version prefix of a file name: "v0.0.1.bin"
// is version v0.0.1.
var versionPattern = regexp.MustCompile(`^v\d+(\.\d+)*`)

// Release is one published firmware image.
type Release struct {
	Version     string    `json:"version"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url"`
	ReleasedAt  time.Time `json:"released_at"`
	Size        int64     `json:"size,omitempty"`
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Service fetches and caches the latest firmware release.
type Service struct {
	cfg        config.FirmwareConfig
	httpClient *http.Client
	logger     Logger

	mu     sync.RWMutex
	latest *Release
}

// NewService creates a firmware service. It does not fetch anything.
func NewService(cfg config.FirmwareConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.DownloadsURL == "" {
		return nil, fmt.Errorf("firmware: downloads_url is required")
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultFetchTimeout},
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Latest returns the cached release, or ErrNoRelease.
func (s *Service) Latest() (Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Release{}, ErrNoRelease
	}
	return *s.latest, nil
}

// downloadsPage is the subset of the Bitbucket downloads listing we read.
type downloadsPage struct {
	Values []struct {
		Name      string    `json:"name"`
		Size      int64     `json:"size"`
		CreatedOn time.Time `json:"created_on"`
		Links     struct {
			Self struct {
				Href string `json:"href"`
			} `json:"self"`
		} `json:"links"`
	} `json:"values"`
}

// FetchLatest lists the downloads, caches the newest file as the latest
// release and returns it. An empty listing yields ErrNoRelease and leaves
// the cache untouched.
func (s *Service) FetchLatest(ctx context.Context) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.DownloadsURL, nil)
	if err != nil {
		return Release{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.AppPassword)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes)) //nolint:errcheck // draining
		return Release{}, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	var page downloadsPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&page); err != nil {
		return Release{}, fmt.Errorf("%w: decoding listing: %w", ErrFetchFailed, err)
	}
	if len(page.Values) == 0 {
		return Release{}, ErrNoRelease
	}

	sort.SliceStable(page.Values, func(i, j int) bool {
		return page.Values[i].CreatedOn.After(page.Values[j].CreatedOn)
	})
	newest := page.Values[0]
	rel := Release{
		Version:     ParseVersion(newest.Name),
		FileName:    newest.Name,
		DownloadURL: newest.Links.Self.Href,
		ReleasedAt:  newest.CreatedOn,
		Size:        newest.Size,
	}

	s.mu.Lock()
	s.latest = &rel
	s.mu.Unlock()

	s.logger.Info("firmware release fetched", "version", rel.Version, "file", rel.FileName)
	return rel, nil
}

// ParseVersion extracts the version prefix of a firmware file name.
func ParseVersion(fileName string) string {
	if v := versionPattern.FindString(fileName); v != "" {
		return v
	}
	return UnknownVersion
}

// WebhookResult reports what a webhook call did.
type WebhookResult struct {
	State     string   `json:"state"`
	Refreshed bool     `json:"refreshed"`
	Release   *Release `json:"release,omitempty"`
}

type webhookPayload struct {
	CommitStatus *struct {
		State string `json:"state"`
	} `json:"commit_status"`
}

// HandleWebhook authenticates a pipeline notification and, when the
// pipeline succeeded, refreshes the latest release.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if err := VerifySignature(body, signature, s.cfg.WebhookSecret); err != nil {
		return WebhookResult{}, err
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if payload.CommitStatus == nil {
		return WebhookResult{}, fmt.Errorf("%w: commit_status missing", ErrInvalidPayload)
	}

	res := WebhookResult{State: payload.CommitStatus.State}
	if res.State != pipelineSuccessful {
		s.logger.Info("pipeline not successful, firmware unchanged", "state", res.State)
		return res, nil
	}

	rel, err := s.FetchLatest(ctx)
	if err != nil {
		s.logger.Warn("firmware refresh after pipeline failed", "error", err)
		return res, err
	}
	res.Refreshed = true
	res.Release = &rel
	return res, nil
}
