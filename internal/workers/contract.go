package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ericksa/contractrisk/internal/blob"
	"github.com/ericksa/contractrisk/internal/extract"
	"github.com/ericksa/contractrisk/internal/metrics"
	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/ericksa/contractrisk/internal/store"
)

// ContractWorker runs uploaded contracts through extraction, risk
// classification and persistence, and serves the stored results.
type ContractWorker struct {
	classifier *risk.Classifier
	store      *store.Store
	blobs      blob.Store
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewContractWorker(classifier *risk.Classifier, st *store.Store, blobs blob.Store, m *metrics.Metrics) *ContractWorker {
	if classifier == nil {
		classifier = risk.NewClassifier(nil)
	}
	return &ContractWorker{
		classifier: classifier,
		store:      st,
		blobs:      blobs,
		metrics:    m,
		now:        time.Now,
	}
}

type Upload struct {
	OriginalName string
	ContentType  string
	Data         []byte
	// MaxExtracted bounds the decompressed document content. Zero uses
	// extract.DefaultMaxDecodedSize.
	MaxExtracted int64
}

// UploadResult describes a stored contract. AnalysisErr is set when the
// document was kept but its text could not be analyzed.
type UploadResult struct {
	Contract    *store.Contract
	Report      *risk.Report
	AnalysisErr error
}

// ContractAnalysis is a contract with its persisted findings.
type ContractAnalysis struct {
	Contract *store.Contract `json:"contract"`
	Risks    []store.Risk    `json:"risks"`
}

func (w *ContractWorker) Upload(ctx context.Context, up Upload) (*UploadResult, error) {
	start := w.now()
	name := blob.ObjectName(up.OriginalName, start)
	size := int64(len(up.Data))

	if err := w.blobs.Put(ctx, name, bytes.NewReader(up.Data), size, up.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	contract, err := w.store.AddContract(ctx, name, up.OriginalName, size)
	if err != nil {
		if delErr := w.blobs.Delete(ctx, name); delErr != nil {
			log.Printf("Warning: failed to remove stored file %s: %v", name, delErr)
		}
		return nil, err
	}
	log.Printf("contract uploaded: %s (%d bytes)", up.OriginalName, size)

	text, err := extract.NewExtractor(up.MaxExtracted).Extract(up.OriginalName, up.Data)
	if err != nil {
		log.Printf("analysis failed for contract %d: %v", contract.ID, err)
		w.metrics.ObserveFailure()
		if updateErr := w.store.UpdateContractStatus(ctx, contract.ID, store.StatusFailed, 0, 0); updateErr != nil {
			return nil, updateErr
		}
		contract.Status = store.StatusFailed
		return &UploadResult{Contract: contract, AnalysisErr: err}, nil
	}

	report := w.classifier.Analyze(text)
	if err := w.store.UpdateContractStatus(ctx, contract.ID, store.StatusAnalyzed, report.RiskScore, report.WordCount); err != nil {
		return nil, err
	}
	if err := w.store.AddRisks(ctx, contract.ID, report.Risks); err != nil {
		return nil, err
	}
	contract.Status = store.StatusAnalyzed
	contract.RiskScore = report.RiskScore
	contract.WordCount = report.WordCount

	w.metrics.ObserveAnalysis(report, w.now().Sub(start))
	log.Printf("analysis complete: %d risks, score %d", report.RiskCount, report.RiskScore)

	return &UploadResult{Contract: contract, Report: &report}, nil
}

// AnalyzeText classifies text without storing anything.
func (w *ContractWorker) AnalyzeText(text string) risk.Report {
	return w.classifier.Analyze(text)
}

// Analysis reads back a stored contract and its findings.
func (w *ContractWorker) Analysis(ctx context.Context, id int64) (*ContractAnalysis, error) {
	contract, err := w.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	risks, err := w.store.RisksByContract(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ContractAnalysis{Contract: contract, Risks: risks}, nil
}

// Original opens the stored upload of a contract. The caller closes the
// reader.
func (w *ContractWorker) Original(ctx context.Context, id int64) (*store.Contract, io.ReadCloser, error) {
	contract, err := w.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := w.blobs.Get(ctx, contract.Filename)
	if err != nil {
		return nil, nil, err
	}
	return contract, rc, nil
}

// Delete removes the contract record, its risks and the stored original.
func (w *ContractWorker) Delete(ctx context.Context, id int64) error {
	contract, err := w.store.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if err := w.store.DeleteContract(ctx, id); err != nil {
		return err
	}
	if err := w.blobs.Delete(ctx, contract.Filename); err != nil && !errors.Is(err, blob.ErrNotFound) {
		log.Printf("Warning: failed to delete stored file %s: %v", contract.Filename, err)
	}
	return nil
}

func (w *ContractWorker) Contracts(ctx context.Context) ([]store.Contract, error) {
	return w.store.ListContracts(ctx)
}

func (w *ContractWorker) Risks(ctx context.Context, severity string) ([]store.Risk, error) {
	if severity != "" && !risk.Severity(severity).Valid() {
		return nil, fmt.Errorf("unknown severity: %q", severity)
	}
	return w.store.ListRisks(ctx, severity)
}

func (w *ContractWorker) Stats(ctx context.Context) (store.Stats, error) {
	return w.store.Stats(ctx)
}

func (w *ContractWorker) TopRiskTypes(ctx context.Context, limit int) ([]store.TypeCount, error) {
	return w.store.TopRiskTypes(ctx, limit)
}

func (w *ContractWorker) AddVendor(ctx context.Context, name, riskLevel string) (*store.Vendor, error) {
	if name == "" {
		return nil, errors.New("vendor name required")
	}
	if riskLevel != "" && !risk.Severity(riskLevel).Valid() {
		return nil, fmt.Errorf("unknown risk level: %q", riskLevel)
	}
	return w.store.AddVendor(ctx, name, riskLevel)
}

func (w *ContractWorker) Vendors(ctx context.Context) ([]store.Vendor, error) {
	return w.store.ListVendors(ctx)
}

func (w *ContractWorker) Rules() []risk.RuleInfo {
	return w.classifier.Rules().Describe()
}

func (w *ContractWorker) GetTools() []ToolDef {
	return []ToolDef{
		{Name: "analyze_text", Description: "Score a block of contract text against the risk rules without storing it"},
		{Name: "list", Description: "List uploaded contracts, newest first"},
		{Name: "get", Description: "Get a stored contract and its detected risks by ID"},
		{Name: "risks", Description: "List detected risks, optionally filtered by severity"},
		{Name: "stats", Description: "Dashboard counts of contracts, risks and vendors"},
		{Name: "delete", Description: "Delete a contract, its risks and the stored file"},
		{Name: "rules", Description: "List the risk rules with severities and weights"},
	}
}

func (w *ContractWorker) Execute(ctx context.Context, name string, input json.RawMessage) ([]byte, error) {
	switch name {
	case "contract_analyze_text", "analyze_text":
		return w.analyzeTextTool(ctx, input)
	case "contract_list", "list":
		return w.listTool(ctx, input)
	case "contract_get", "get":
		return w.getTool(ctx, input)
	case "contract_risks", "risks":
		return w.risksTool(ctx, input)
	case "contract_stats", "stats":
		return w.statsTool(ctx, input)
	case "contract_delete", "delete":
		return w.deleteTool(ctx, input)
	case "contract_rules", "rules":
		return json.Marshal(w.Rules())
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (w *ContractWorker) analyzeTextTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	report := w.AnalyzeText(req.Text)
	return json.Marshal(struct {
		risk.Report
		RiskLevel risk.Band `json:"riskLevel"`
	}{report, risk.BandFor(report.RiskScore)})
}

func (w *ContractWorker) listTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	contracts, err := w.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{"count": len(contracts), "contracts": contracts})
}

func (w *ContractWorker) getTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	analysis, err := w.Analysis(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("contract %d: %w", req.ID, err)
	}
	return json.Marshal(analysis)
}

func (w *ContractWorker) risksTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	var req struct {
		Severity string `json:"severity"`
	}
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	risks, err := w.Risks(ctx, req.Severity)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]interface{}{"count": len(risks), "risks": risks})
}

func (w *ContractWorker) statsTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	stats, err := w.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stats)
}

func (w *ContractWorker) deleteTool(ctx context.Context, input json.RawMessage) ([]byte, error) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if err := w.Delete(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("contract %d: %w", req.ID, err)
	}
	return json.Marshal(map[string]interface{}{"success": true, "id": req.ID})
}

func decodeInput(input json.RawMessage, v interface{}) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}
	return nil
}
