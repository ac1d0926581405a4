// Download interception: observe network responses while a triggering
// action runs and capture the first response matching a URL/MIME predicate.

package browser

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
)

const defaultInterceptTimeout = 30 * time.Second

// ResponsePredicate matches a network response by URL pattern or MIME type.
// A response matching either set is captured.
type ResponsePredicate struct {
	URLPatterns []*regexp.Regexp
	MimeTypes   []string
}

// Matches reports whether a response with the given URL and MIME type
// satisfies the predicate.
func (p ResponsePredicate) Matches(respURL, mimeType string) bool {
	for _, re := range p.URLPatterns {
		if re.MatchString(respURL) {
			return true
		}
	}
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	for _, mt := range p.MimeTypes {
		if base == strings.ToLower(mt) {
			return true
		}
	}
	return false
}

// Interceptor captures a single downloadable artifact during a triggered
// browser action.
type Interceptor struct {
	timeout time.Duration
	logger  arbor.ILogger
}

// NewInterceptor creates an interceptor. A zero timeout selects the 30 s
// default.
func NewInterceptor(timeout time.Duration, logger arbor.ILogger) *Interceptor {
	if timeout <= 0 {
		timeout = defaultInterceptTimeout
	}
	return &Interceptor{timeout: timeout, logger: logger}
}

type capturedResponse struct {
	requestID network.RequestID
	url       string
	mimeType  string
	headers   network.Headers
}

// Capture attaches a response observer to the page, invokes trigger, and
// resolves with the first matching response body. It returns
// models.ErrNoMatchingResponse when the trigger fails or no match arrives
// before the timeout. The observer is detached exactly once on every path.
func (i *Interceptor) Capture(pageCtx context.Context, pred ResponsePredicate, trigger func(ctx context.Context) error) (*models.DownloadedArtifact, error) {
	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}

	// Cancelling listenCtx detaches the observer; the deferred cancel
	// guarantees exactly-once detach on all exit paths.
	listenCtx, stopListening := context.WithCancel(pageCtx)
	defer stopListening()

	var (
		mu      sync.Mutex
		matched *capturedResponse
	)
	ready := make(chan capturedResponse, 1)

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			mu.Lock()
			if matched == nil && pred.Matches(e.Response.URL, e.Response.MimeType) {
				matched = &capturedResponse{
					requestID: e.RequestID,
					url:       e.Response.URL,
					mimeType:  e.Response.MimeType,
					headers:   e.Response.Headers,
				}
				i.logger.Debug().
					Str("url", e.Response.URL).
					Str("mime_type", e.Response.MimeType).
					Msg("Matching response observed, waiting for body")
			}
			mu.Unlock()
		case *network.EventLoadingFinished:
			mu.Lock()
			if matched != nil && matched.requestID == e.RequestID {
				select {
				case ready <- *matched:
				default:
				}
			}
			mu.Unlock()
		}
	})

	if err := trigger(pageCtx); err != nil {
		// A failed trigger resolves to "none" immediately, no timeout wait
		i.logger.Debug().Err(err).Msg("Trigger action failed, resolving to none")
		return nil, models.ErrNoMatchingResponse
	}

	select {
	case resp := <-ready:
		return i.readArtifact(pageCtx, resp)
	case <-time.After(i.timeout):
		i.logger.Debug().Dur("timeout", i.timeout).Msg("No matching response before timeout")
		return nil, models.ErrNoMatchingResponse
	case <-pageCtx.Done():
		return nil, models.ErrNoMatchingResponse
	}
}

func (i *Interceptor) readArtifact(pageCtx context.Context, resp capturedResponse) (*models.DownloadedArtifact, error) {
	var body []byte
	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(resp.requestID).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	artifact := &models.DownloadedArtifact{
		Filename: FilenameFor(resp.headers, resp.url),
		Content:  body,
		MimeType: resp.mimeType,
		Size:     len(body),
	}

	i.logger.Info().
		Str("filename", artifact.Filename).
		Str("mime_type", artifact.MimeType).
		Int("bytes", artifact.Size).
		Msg("Download captured")

	return artifact, nil
}

// FilenameFor derives an artifact filename from the Content-Disposition
// header when present, else the last URL path segment, else a generic name.
func FilenameFor(headers network.Headers, respURL string) string {
	if headers != nil {
		for key, value := range headers {
			if !strings.EqualFold(key, "Content-Disposition") {
				continue
			}
			if str, ok := value.(string); ok {
				if _, params, err := mime.ParseMediaType(str); err == nil {
					if name := params["filename"]; name != "" {
						return name
					}
				}
			}
		}
	}

	if parsed, err := url.Parse(respURL); err == nil {
		if segment := path.Base(parsed.Path); segment != "" && segment != "/" && segment != "." {
			return segment
		}
	}

	return "download.bin"
}
