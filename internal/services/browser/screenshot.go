package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// CaptureScreenshot takes a viewport screenshot of the page as PNG bytes.
// Failures are returned to the caller, which normally logs and continues;
// a missing screenshot never fails an automation run.
func CaptureScreenshot(pageCtx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(pageCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// CaptureFullScreenshot takes a full-page screenshot at the given quality.
func CaptureFullScreenshot(pageCtx context.Context, quality int) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(pageCtx, chromedp.FullScreenshot(&buf, quality)); err != nil {
		return nil, err
	}
	return buf, nil
}
