// Package config loads and decodes the Project Configuration (§6): a
// nested key/value YAML document frozen at project init and read by every
// other component. Using a yaml.v3 + mapstructure pair, the document is
// first parsed loosely (so unknown/legacy keys never
// abort a load) and then decoded into the typed Project struct with
// mapstructure, weak-typing disabled so e.g. a dataset path "01" never
// silently becomes the number 1.
package config

import (
	"os"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pennlinc/batchctl/internal/core"
)

// DatasetKind distinguishes input datasets whose required-file checks must
// be performed (raw) from those trusted without inspection (zipped).
type DatasetKind string

const (
	DatasetRaw    DatasetKind = "raw"
	DatasetZipped DatasetKind = "zipped"
)

// InputDataset describes one declared input dataset (§6).
type InputDataset struct {
	Name          string      `mapstructure:"name"`
	Origin        string      `mapstructure:"origin"`
	Kind          DatasetKind `mapstructure:"-"`
	IsZipped      bool        `mapstructure:"is_zipped"`
	PathInProject string      `mapstructure:"path_in_project"`
	RequiredFiles []string    `mapstructure:"required_files"`
}

// AlertEntry is one (stream, pattern) pair in the Alert Catalog (§3).
type AlertEntry struct {
	Stream  string `mapstructure:"stream"`
	Pattern string `mapstructure:"pattern"`
}

// ClusterResources mirrors the scheduler-facing resource request block
// forwarded opaquely into the submission template.
type ClusterResources struct {
	TimeLimit string `mapstructure:"time_limit"`
	Nodes     int32  `mapstructure:"nodes"`
	CPUs      int32  `mapstructure:"cpus"`
	Partition string `mapstructure:"partition"`
}

// Project is the realized, typed Project Configuration the core consumes.
// It is frozen at init: every core operation treats it as read-only.
type Project struct {
	ProcessingLevel  string                  `mapstructure:"processing_level"`
	Queue            string                  `mapstructure:"queue"`
	InputDatasets    map[string]InputDataset `mapstructure:"input_datasets"`
	BIDSAppArgs      []string                `mapstructure:"bids_app_args"`
	ZipFoldernames   map[string]string       `mapstructure:"zip_foldernames"`
	AllResultsInZip  bool                    `mapstructure:"all_results_in_one_zip"`
	ClusterResources ClusterResources        `mapstructure:"cluster_resources"`
	ScriptPreamble   string                  `mapstructure:"script_preamble"`
	JobComputeSpace  string                  `mapstructure:"job_compute_space"`
	AlertLogMessages struct {
		Stdout []string `mapstructure:"stdout"`
		Stderr []string `mapstructure:"stderr"`
	} `mapstructure:"alert_log_messages"`
	ImportedFiles []string `mapstructure:"imported_files"`

	// SubmitArrayThreshold is the C3 submission-planner threshold: lists
	// of this size or larger are submitted as a single array job.
	SubmitArrayThreshold int `mapstructure:"submit_array_threshold"`

	// MergeChunkSize is the default finalizer chunk size (§4.8 default 20).
	MergeChunkSize int `mapstructure:"merge_chunk_size"`

	// datasetOrder records input_datasets' declaration order as written in
	// the YAML document. mapstructure decodes InputDatasets into a map,
	// which loses key order, so Load recovers it separately via yaml.Node
	// and FirstInputDataset consults it instead of guessing from map keys.
	datasetOrder []string
}

// Mode returns the fixed processing mode for this project.
func (p *Project) Mode() core.Mode {
	if p.ProcessingLevel == "session" {
		return core.TwoLevel
	}
	return core.SingleLevel
}

// AlertCatalog returns the ordered (stream, pattern) list (§3). Stdout
// entries are declared before stderr entries; declaration order within each
// is preserved, matching the classifier's documented ordering contract.
func (p *Project) AlertCatalog() []AlertEntry {
	var out []AlertEntry
	for _, pat := range p.AlertLogMessages.Stdout {
		out = append(out, AlertEntry{Stream: "stdout", Pattern: pat})
	}
	for _, pat := range p.AlertLogMessages.Stderr {
		out = append(out, AlertEntry{Stream: "stderr", Pattern: pat})
	}
	return out
}

// FirstInputDataset returns the dataset the Inclusion Resolver enumerates
// subjects/sessions from when no initial list is supplied: §4.1 step 1's
// "the first declared input dataset", in the order it was written in the
// project configuration's input_datasets block.
func (p *Project) FirstInputDataset() (InputDataset, error) {
	if len(p.InputDatasets) == 0 {
		return InputDataset{}, core.NewConfigError("project declares no input datasets", nil)
	}

	first := p.datasetOrder
	if len(first) == 0 {
		// Project built directly rather than via Load (e.g. tests): no
		// declaration order was ever captured, so fall back to the
		// smallest name, deterministic regardless of map iteration order.
		names := make([]string, 0, len(p.InputDatasets))
		for name := range p.InputDatasets {
			names = append(names, name)
		}
		sort.Strings(names)
		first = names
	}

	ds := p.InputDatasets[first[0]]
	ds.Name = first[0]
	if ds.IsZipped {
		ds.Kind = DatasetZipped
	} else {
		ds.Kind = DatasetRaw
	}
	return ds, nil
}

// Load reads and decodes the project configuration file at path.
func Load(path string) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigError("cannot read project configuration "+path, err)
	}

	var loose map[string]interface{}
	if err := yaml.Unmarshal(raw, &loose); err != nil {
		return nil, core.NewConfigError("project configuration is not valid YAML", err)
	}

	var p Project
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: false,
		ErrorUnused:      false,
		Result:           &p,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot build configuration decoder")
	}

	if err := decoder.Decode(loose); err != nil {
		return nil, core.NewConfigError("project configuration does not match the expected schema", err)
	}

	if p.SubmitArrayThreshold <= 0 {
		p.SubmitArrayThreshold = 4
	}
	if p.MergeChunkSize <= 0 {
		p.MergeChunkSize = 20
	}

	for name, ds := range p.InputDatasets {
		ds.Name = name
		if ds.IsZipped {
			ds.Kind = DatasetZipped
		} else {
			ds.Kind = DatasetRaw
		}
		p.InputDatasets[name] = ds
	}

	if p.ProcessingLevel != "subject" && p.ProcessingLevel != "session" {
		return nil, core.NewConfigError("processing_level must be 'subject' or 'session', got "+p.ProcessingLevel, nil)
	}

	order, err := datasetDeclarationOrder(raw)
	if err != nil {
		return nil, core.NewConfigError("cannot recover input_datasets declaration order", err)
	}
	p.datasetOrder = order

	return &p, nil
}

// datasetDeclarationOrder walks the document's input_datasets mapping via
// yaml.Node, whose Content preserves source order, to recover the order
// yaml.Unmarshal's plain-map decode above lost.
func datasetDeclarationOrder(raw []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	var datasets *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "input_datasets" {
			datasets = root.Content[i+1]
			break
		}
	}
	if datasets == nil {
		return nil, nil
	}

	names := make([]string, 0, len(datasets.Content)/2)
	for i := 0; i+1 < len(datasets.Content); i += 2 {
		names = append(names, datasets.Content[i].Value)
	}
	return names, nil
}
