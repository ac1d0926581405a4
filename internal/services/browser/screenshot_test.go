package browser

import (
	"bytes"
	"context"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestCaptureFullScreenshot(t *testing.T) {
	if !chromeAvailable() {
		t.Skip("no Chrome binary on PATH")
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	defer allocCancel()
	pageCtx, pageCancel := chromedp.NewContext(allocCtx)
	defer pageCancel()

	require.NoError(t, chromedp.Run(pageCtx, chromedp.Navigate("about:blank")))

	buf, err := CaptureFullScreenshot(pageCtx, 90)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf, pngMagic), "expected PNG output")
}
