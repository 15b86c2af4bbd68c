package scheduler

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"github.com/pennlinc/batchctl/internal/core"
)

// placeholderData is the documented set of template placeholders (§6
// "Environment variables passed into jobs"): a temporary per-job directory,
// a template-asset home, and a license-file path, plus the PU identity and
// the assigned job/task IDs once known.
type placeholderData struct {
	Subject        string
	Session        string
	JobID          int64
	TaskID         int32
	JobComputeDir  string
	TemplateAssets string
	LicenseFile    string
	Preamble       string
	Resources      TemplateResources
}

// RenderOptions carries the per-project placeholder values substituted into
// every rendered script.
type RenderOptions struct {
	JobComputeDir  string
	TemplateAssets string
	LicenseFile    string
}

// Render substitutes tpl's placeholders for one PU, producing the literal
// script the adapter hands to the backend (§6: the core treats the
// template as opaque string substitution). Uses text/template with the
// sprig function map (Masterminds/sprig) for manifest-style templating.
func Render(tpl Template, pu core.ProcessingUnit, jobID int64, taskID int32, opts RenderOptions) (string, error) {
	t, err := template.New("submission").Funcs(sprig.TxtFuncMap()).Parse(tpl.Body)
	if err != nil {
		return "", errors.Wrap(err, "parsing submission template")
	}

	data := placeholderData{
		Subject:        pu.Subject,
		Session:        pu.Session,
		JobID:          jobID,
		TaskID:         taskID,
		JobComputeDir:  opts.JobComputeDir,
		TemplateAssets: opts.TemplateAssets,
		LicenseFile:    opts.LicenseFile,
		Preamble:       tpl.Preamble,
		Resources:      tpl.Resources,
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "rendering submission template")
	}
	return buf.String(), nil
}
