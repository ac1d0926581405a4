package vendors

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
)

// inspectArtifacts validates each captured PDF and records its page count.
// Vendors occasionally serve truncated or HTML-disguised downloads; a file
// that fails validation is kept but flagged in the run log so the caller
// can decide what to do with it.
func inspectArtifacts(artifacts []models.DownloadedArtifact, log *runLog, logger arbor.ILogger) {
	conf := model.NewDefaultConfiguration()

	for i := range artifacts {
		a := &artifacts[i]
		if a.MimeType != "application/pdf" {
			continue
		}

		pdfCtx, err := api.ReadContext(bytes.NewReader(a.Content), conf)
		if err == nil {
			err = api.ValidateContext(pdfCtx)
		}
		if err != nil {
			logger.Warn().Err(err).Str("filename", a.Filename).Msg("Downloaded PDF failed validation")
			log.Add("artifact %s failed PDF validation: %v", a.Filename, err)
			continue
		}

		a.Pages = pdfCtx.PageCount
		log.Add("artifact %s validated (%d page(s))", a.Filename, pdfCtx.PageCount)
	}
}
