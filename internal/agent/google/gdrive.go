package google

import (
	"context"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
)

const StepSearchDriveFiles = "search_drive_files"

// Drive owns the drive steps.
type Drive struct {
	search Retriever
}

// NewDrive returns the drive owner.
func NewDrive(r Retriever) *Drive { return &Drive{search: r} }

func (d *Drive) Name() string { return "gdrive" }

func (d *Drive) Steps() []string { return []string{StepSearchDriveFiles} }

func (d *Drive) Handle(ctx context.Context, stepID string, ec *agent.Context) (agent.StepResult, error) {
	if stepID != StepSearchDriveFiles {
		return agent.Unsupported(stepID), nil
	}
	q := ec.Intent.Entity("company", "query")
	if q == "" {
		q = "document"
	}
	out, err := d.search.Search(ctx, retrieval.Query{
		Collection: records.GDrive,
		UserID:     ec.UserID,
		Keyword:    q,
		Limit:      1,
	})
	if err != nil {
		return agent.StepResult{}, err
	}
	if !out.Found() {
		return agent.NotFound(StepSearchDriveFiles, "No drive file found for "+q), nil
	}
	f := out.Best()
	return agent.Found(StepSearchDriveFiles, map[string]interface{}{
		"file_id":         f.ID,
		"name":            f.Title,
		"content_preview": f.Body,
		"method":          string(out.Method),
	}), nil
}

var _ agent.Agent = (*Drive)(nil)
