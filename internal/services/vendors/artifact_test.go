package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/models"
)

func TestInspectArtifactsFlagsCorruptPDF(t *testing.T) {
	artifacts := []models.DownloadedArtifact{
		{
			Filename: "broken.pdf",
			Content:  []byte("<html>not a pdf</html>"),
			MimeType: "application/pdf",
		},
	}

	log := &runLog{}
	inspectArtifacts(artifacts, log, arbor.NewLogger())

	assert.Equal(t, 0, artifacts[0].Pages)

	lines := log.Lines()
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "failed PDF validation")
}

func TestInspectArtifactsSkipsNonPDF(t *testing.T) {
	artifacts := []models.DownloadedArtifact{
		{
			Filename: "statement.csv",
			Content:  []byte("date,amount\n2024-03-01,1000"),
			MimeType: "text/csv",
		},
	}

	log := &runLog{}
	inspectArtifacts(artifacts, log, arbor.NewLogger())

	assert.Empty(t, log.Lines())
	assert.Equal(t, 0, artifacts[0].Pages)
}
