package democlips

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(url string) (*http.Response, error) {
	return c.client.Get(url)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(url string, body interface{}) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// createSession creates a new analysis session and returns its ID.
func createSession(client *HTTPClient, baseURL string) (string, error) {
	resp, err := client.Post(baseURL+"/sessions", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return "", fmt.Errorf("failed to read session response: %w", err)
	}
	if resp.StatusCode != StatusCreated {
		return "", fmt.Errorf("unexpected status %d creating session", resp.StatusCode)
	}

	var view SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return "", fmt.Errorf("failed to parse session response: %w", err)
	}
	if view.SessionID == "" {
		return "", fmt.Errorf("empty session id in response")
	}
	return view.SessionID, nil
}

// submitClips creates a session per clip and submits concurrently using
// worker pools. Returns the session IDs keyed by clip index.
func submitClips(ctx context.Context, config *Config, clips []Clip, stats *Stats) ([]string, error) {
	log.Printf("📤 Submitting %d clips with %d workers...", len(clips), config.Workers)

	client := newHTTPClient(config.Timeout)
	sessionIDs := make([]string, len(clips))

	// Counters for statistics
	var (
		successful int64
		duplicate  int64
		failed     int64
		submitted  int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	type job struct {
		index int
		clip  Clip
	}

	// Create worker pool
	jobChan := make(chan job, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					sessionID, result := submitSingleClip(client, config.BaseURL, j.clip)
					sessionIDs[j.index] = sessionID

					// Update counters
					atomic.AddInt64(&submitted, 1)
					switch result {
					case "success":
						atomic.AddInt64(&successful, 1)
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						succ := atomic.LoadInt64(&successful)
						dup := atomic.LoadInt64(&duplicate)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (success: %d, duplicate: %d, failed: %d)",
								total, len(clips), succ, dup, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (success: %d, duplicate: %d, failed: %d)",
								total, len(clips), succ, dup, fail)
						}
					}
				}
			}
		}()
	}

	// Send clips to workers
	go func() {
		defer close(jobChan)
		for i, c := range clips {
			select {
			case <-ctx.Done():
				return
			case jobChan <- job{index: i, clip: c}:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.ClipsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ClipsSuccessful = int(atomic.LoadInt64(&successful))
	stats.ClipsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.ClipsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Clip submission completed:
   Successful: %d
   Duplicate: %d
   Failed: %d
`, stats.ClipsSuccessful, stats.ClipsDuplicate, stats.ClipsFailed)

	return sessionIDs, nil
}

// submitSingleClip creates a session, submits one clip, and returns the
// session ID plus the outcome.
func submitSingleClip(client *HTTPClient, baseURL string, c Clip) (string, string) {
	sessionID, err := createSession(client, baseURL)
	if err != nil {
		return "", "failed"
	}

	resp, err := client.Post(baseURL+"/sessions/"+sessionID+"/clips", c)
	if err != nil {
		return sessionID, "failed"
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return sessionID, "failed"
	}

	switch resp.StatusCode {
	case StatusAccepted:
		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Status == "accepted" {
			return sessionID, "success"
		}
		return sessionID, "success" // Assume success for 202 even if parsing fails
	case StatusOK:
		return sessionID, "duplicate"
	default:
		return sessionID, "failed"
	}
}

// pollSessions waits for each session to leave the loading state and
// collects the final views.
func pollSessions(ctx context.Context, config *Config, sessionIDs []string, stats *Stats) ([]SessionView, error) {
	log.Printf("⏳ Polling %d sessions for results...", len(sessionIDs))

	client := newHTTPClient(config.Timeout)
	views := make([]SessionView, len(sessionIDs))

	type job struct {
		index     int
		sessionID string
	}

	jobChan := make(chan job, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	var retrieved int64

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				view, err := pollSingleSession(ctx, client, config.BaseURL, j.sessionID)
				if err == nil {
					views[j.index] = view
					atomic.AddInt64(&retrieved, 1)
				}
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for i, id := range sessionIDs {
			if id == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case jobChan <- job{index: i, sessionID: id}:
			}
		}
	}()

	wg.Wait()

	stats.ResultsRetrieved = int(atomic.LoadInt64(&retrieved))
	log.Printf("✅ Retrieved results for %d sessions", stats.ResultsRetrieved)

	return views, nil
}

// pollSingleSession fetches the session until it is no longer loading or
// the poll budget runs out.
func pollSingleSession(ctx context.Context, client *HTTPClient, baseURL, sessionID string) (SessionView, error) {
	deadline := time.Now().Add(PollBudget)
	for {
		select {
		case <-ctx.Done():
			return SessionView{}, ctx.Err()
		default:
		}

		resp, err := client.Get(baseURL + "/sessions/" + sessionID)
		if err != nil {
			return SessionView{}, err
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return SessionView{}, err
		}
		if resp.StatusCode != StatusOK {
			return SessionView{}, fmt.Errorf("unexpected status %d fetching session", resp.StatusCode)
		}

		var view SessionView
		if err := json.Unmarshal(body, &view); err != nil {
			return SessionView{}, err
		}
		if view.State != "loading" {
			return view, nil
		}
		if time.Now().After(deadline) {
			return view, fmt.Errorf("session %s still loading after poll budget", sessionID)
		}
		time.Sleep(PollInterval)
	}
}
