// Package upload implements C7: the resumable upload session and
// transfer protocol described in spec.md §4.7 and §6.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/motiontrace/capture-sdk/internal/auth"
	"github.com/motiontrace/capture-sdk/internal/httputil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/monitoring"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

// State is one of the four externally observable upload states C7 maps
// every C1/C2/C6 and network error onto (spec.md §7 Propagation).
type State string

const (
	StateStarted                State = "started"
	StateFinishedSuccessfully   State = "finishedSuccessfully"
	StateFinishedUnsuccessfully State = "finishedUnsuccessfully"
	StateFinishedWithError      State = "finishedWithError"
)

// Result is the outcome of one Upload call. Cause is set whenever the
// state is not a clean success.
type Result struct {
	State State
	Cause error
}

// forceRefresher is implemented by Authenticators that can act on the
// "signal the authenticator to refresh" instruction in spec.md §4.7 step
// 2, rather than merely returning a cached token. Authenticators that
// don't implement it (Static, Mock) are retried with the same token.
type forceRefresher interface {
	ForceRefresh(ctx context.Context) (string, error)
}

// Uploader drives the resumable upload protocol for measurements loaded
// from store, against baseURL's collector API.
type Uploader struct {
	store         *measurestore.DB
	client        httputil.HTTPClient
	authenticator auth.Authenticator
	clock         timeutil.Clock
	baseURL       string

	chunkSize   int64
	maxAttempts int
	backoffBase time.Duration

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New constructs an Uploader with the package defaults: a 256KiB chunk
// size, 5 retry attempts, and a 500ms exponential backoff base.
func New(store *measurestore.DB, client httputil.HTTPClient, authenticator auth.Authenticator, clock timeutil.Clock, baseURL string) *Uploader {
	return &Uploader{
		store:         store,
		client:        client,
		authenticator: authenticator,
		clock:         clock,
		baseURL:       strings.TrimRight(baseURL, "/"),
		chunkSize:     256 * 1024,
		maxAttempts:   5,
		backoffBase:   500 * time.Millisecond,
	}
}

// Upload runs the Initiation/Transfer/Recovery protocol for one
// measurement's already-encoded payload (wireformat.Encode'd, optionally
// wireformat.Compress'd). Exactly one Upload per measurement may be in
// flight at a time; a concurrent call returns ErrAlreadyUploading.
func (u *Uploader) Upload(ctx context.Context, measurementID int64, meta Metadata, payload []byte) (Result, error) {
	if err := u.markInFlight(measurementID); err != nil {
		return Result{}, err
	}
	defer u.clearInFlight(measurementID)

	total := int64(len(payload))

	sessionURL, offset, result, done := u.resumeOrInitiate(ctx, measurementID, meta, payload, total)
	if done {
		return result, nil
	}

	return u.transfer(ctx, measurementID, sessionURL, payload, offset, total)
}

// resumeOrInitiate loads (or creates) the session for a measurement and
// determines the byte offset to resume from. done=true means the caller
// should return result immediately without entering the transfer loop.
func (u *Uploader) resumeOrInitiate(ctx context.Context, measurementID int64, meta Metadata, payload []byte, total int64) (sessionURL string, offset int64, result Result, done bool) {
	session, err := u.store.GetSession(measurementID)
	if errors.Is(err, measurestore.ErrSessionNotRegistered) {
		sessionURL, err = u.initiate(ctx, measurementID, meta, payload)
		if err != nil {
			return "", 0, Result{State: StateFinishedWithError, Cause: err}, true
		}
		return sessionURL, 0, Result{}, false
	}
	if err != nil {
		return "", 0, Result{State: StateFinishedWithError, Cause: err}, true
	}

	token, err := u.authenticator.Authenticate(ctx)
	if err != nil {
		return "", 0, Result{State: StateFinishedWithError, Cause: err}, true
	}

	offset, err = u.statusProbe(ctx, token, session.SessionURL, total)
	if err != nil {
		var httpErr *HttpStatus
		if errors.As(err, &httpErr) && (httpErr.Code == http.StatusNotFound || httpErr.Code == http.StatusConflict) {
			if derr := u.store.DeleteSession(measurementID); derr != nil {
				monitoring.Logf("upload: failed to drop stale session for %d: %v", measurementID, derr)
			}
			return "", 0, Result{State: StateFinishedUnsuccessfully, Cause: err}, true
		}
		// Any other failure leaves the session URL and prior progress
		// valid; surface a retryable "started" state instead.
		return "", 0, Result{State: StateStarted, Cause: err}, true
	}
	if offset >= total {
		result, _ = u.complete(measurementID)
		return "", 0, result, true
	}
	return session.SessionURL, offset, Result{}, false
}

func (u *Uploader) transfer(ctx context.Context, measurementID int64, sessionURL string, payload []byte, offset, total int64) (Result, error) {
	attempt := 0
	refreshedOnce := false

	for offset < total {
		select {
		case <-ctx.Done():
			return Result{State: StateStarted, Cause: ctx.Err()}, nil
		default:
		}

		token, err := u.authenticator.Authenticate(ctx)
		if err != nil {
			return Result{State: StateFinishedWithError, Cause: err}, nil
		}

		end := offset + u.chunkSize
		if end > total {
			end = total
		}
		status, rangeHeader, body, err := u.sendChunk(ctx, token, sessionURL, payload[offset:end], offset, total)
		if err != nil {
			attempt++
			if attempt >= u.maxAttempts {
				return Result{State: StateStarted, Cause: &Transport{Cause: err}}, nil
			}
			u.sleepBackoff(attempt)
			continue
		}
		u.recordTask(measurementID, status, offset, end)

		switch {
		case status == http.StatusOK || status == http.StatusCreated:
			return u.complete(measurementID)

		case status == http.StatusPermanentRedirect:
			next, perr := parseRangeHeader(rangeHeader)
			if perr != nil {
				return Result{State: StateFinishedWithError, Cause: perr}, nil
			}
			offset = next
			attempt = 0

		case status == http.StatusUnauthorized:
			if refreshedOnce {
				return Result{State: StateFinishedUnsuccessfully, Cause: &AuthRequired{}}, nil
			}
			refreshedOnce = true
			if _, rerr := u.forceRefresh(ctx); rerr != nil {
				return Result{State: StateFinishedUnsuccessfully, Cause: &AuthRequired{}}, nil
			}

		case status == http.StatusNotFound || status == http.StatusConflict:
			if derr := u.store.DeleteSession(measurementID); derr != nil {
				monitoring.Logf("upload: failed to drop stale session for %d: %v", measurementID, derr)
			}
			return Result{State: StateFinishedUnsuccessfully, Cause: &HttpStatus{Code: status}}, nil

		case status >= 500:
			attempt++
			if attempt >= u.maxAttempts {
				return Result{State: StateStarted, Cause: &HttpStatus{Code: status}}, nil
			}
			u.sleepBackoff(attempt)

		default:
			return Result{State: StateFinishedUnsuccessfully, Cause: &ServerRejected{Code: status, Body: body}}, nil
		}
	}

	return u.complete(measurementID)
}

func (u *Uploader) forceRefresh(ctx context.Context) (string, error) {
	if r, ok := u.authenticator.(forceRefresher); ok {
		return r.ForceRefresh(ctx)
	}
	return u.authenticator.Authenticate(ctx)
}

func (u *Uploader) initiate(ctx context.Context, measurementID int64, meta Metadata, payload []byte) (string, error) {
	m, err := u.store.Load(measurementID)
	if err != nil {
		return "", fmt.Errorf("upload: load measurement %d: %w", measurementID, err)
	}
	metrics := m.Metrics()

	token, err := u.authenticator.Authenticate(ctx)
	if err != nil {
		return "", fmt.Errorf("upload: authenticate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/measurements", nil)
	if err != nil {
		return "", fmt.Errorf("upload: build initiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for key, values := range initiationHeaders(measurementID, meta, metrics) {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", &Transport{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HttpStatus{Code: resp.StatusCode}
	}
	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", fmt.Errorf("upload: initiation response missing Location header")
	}

	if err := u.store.CreateSession(measurementID, sessionURL, u.clock.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("upload: persist session: %w", err)
	}
	return sessionURL, nil
}

// statusProbe issues the zero-length recovery PUT from spec.md §4.7 step
// 3, returning the offset to resume from.
func (u *Uploader) statusProbe(ctx context.Context, token, sessionURL string, total int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, nil)
	if err != nil {
		return 0, fmt.Errorf("upload: build status probe: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, &Transport{Cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return total, nil
	case http.StatusPermanentRedirect:
		return parseRangeHeader(resp.Header.Get("Range"))
	default:
		return 0, &HttpStatus{Code: resp.StatusCode}
	}
}

func (u *Uploader) sendChunk(ctx context.Context, token, sessionURL string, chunk []byte, start, total int64) (status int, rangeHeader, body string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return 0, "", "", fmt.Errorf("upload: build transfer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Length", strconv.Itoa(len(chunk)))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(chunk))-1, total))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, "", "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header.Get("Range"), string(respBody), nil
}

func (u *Uploader) complete(measurementID int64) (Result, error) {
	if err := u.store.MarkSynchronized(measurementID); err != nil {
		return Result{State: StateFinishedWithError, Cause: err}, nil
	}
	if err := u.store.DeleteSession(measurementID); err != nil {
		monitoring.Logf("upload: failed to delete session for %d after success: %v", measurementID, err)
	}
	return Result{State: StateFinishedSuccessfully}, nil
}

func (u *Uploader) recordTask(measurementID int64, status int, start, end int64) {
	task := measurestore.UploadTask{
		MeasurementID: measurementID,
		StatusCode:    status,
		TimeMs:        u.clock.Now().UnixMilli(),
		RangeStart:    start,
		RangeEnd:      end,
	}
	if err := u.store.AppendTask(task); err != nil {
		monitoring.Logf("upload: failed to record task for %d: %v", measurementID, err)
	}
}

func (u *Uploader) sleepBackoff(attempt int) {
	d := u.backoffBase * time.Duration(int64(1)<<uint(attempt-1))
	u.clock.Sleep(d)
}

func (u *Uploader) markInFlight(measurementID int64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.inFlight == nil {
		u.inFlight = make(map[int64]bool)
	}
	if u.inFlight[measurementID] {
		return ErrAlreadyUploading
	}
	u.inFlight[measurementID] = true
	return nil
}

func (u *Uploader) clearInFlight(measurementID int64) {
	u.mu.Lock()
	delete(u.inFlight, measurementID)
	u.mu.Unlock()
}

// isInFlight reports whether measurementID currently has an Upload call
// in progress. Exported to this package's tests only.
func (u *Uploader) isInFlight(measurementID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inFlight[measurementID]
}

// parseRangeHeader parses a "bytes=0-W" Range response header into the
// next-expected offset (W+1), per spec.md §6.
func parseRangeHeader(header string) (int64, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, fmt.Errorf("upload: malformed Range header %q", header)
	}
	bounds := strings.SplitN(header[len(prefix):], "-", 2)
	if len(bounds) != 2 {
		return 0, fmt.Errorf("upload: malformed Range header %q", header)
	}
	end, err := strconv.ParseInt(bounds[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("upload: malformed Range header %q: %w", header, err)
	}
	return end + 1, nil
}
