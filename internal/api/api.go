// Package api serves the contract dashboard REST endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericksa/contractrisk/internal/audit"
	"github.com/ericksa/contractrisk/internal/blob"
	"github.com/ericksa/contractrisk/internal/config"
	"github.com/ericksa/contractrisk/internal/metrics"
	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/ericksa/contractrisk/internal/store"
	"github.com/ericksa/contractrisk/internal/workers"
	"github.com/gorilla/mux"
)

// multipart overhead allowed on top of the configured file size
const formOverhead = 1 << 20

type ContractAPI struct {
	worker  *workers.ContractWorker
	config  *config.Shared
	auditor *audit.Auditor
	metrics *metrics.Metrics
	router  *mux.Router
	now     func() time.Time
}

// NewContractAPI builds the dashboard routes. Upload limits are read from
// shared on every request.
func NewContractAPI(worker *workers.ContractWorker, shared *config.Shared, auditor *audit.Auditor, m *metrics.Metrics) *ContractAPI {
	api := &ContractAPI{
		worker:  worker,
		config:  shared,
		auditor: auditor,
		metrics: m,
		router:  mux.NewRouter(),
		now:     time.Now,
	}
	api.routes()
	return api
}

func (api *ContractAPI) Router() *mux.Router {
	return api.router
}

func (api *ContractAPI) routes() {
	r := api.router.PathPrefix("/api").Subrouter()
	r.HandleFunc("/health", api.health).Methods("GET")
	r.HandleFunc("/upload", api.uploadContract).Methods("POST")
	r.HandleFunc("/contracts", api.listContracts).Methods("GET")
	r.HandleFunc("/contracts/{id:[0-9]+}/analysis", api.getAnalysis).Methods("GET")
	r.HandleFunc("/contracts/{id:[0-9]+}/file", api.downloadContract).Methods("GET")
	r.HandleFunc("/contracts/{id:[0-9]+}", api.deleteContract).Methods("DELETE")
	r.HandleFunc("/risks", api.listRisks).Methods("GET")
	r.HandleFunc("/stats", api.stats).Methods("GET")
	r.HandleFunc("/analyze", api.analyzeText).Methods("POST")
	r.HandleFunc("/rules", api.rules).Methods("GET")
	r.HandleFunc("/vendors", api.listVendors).Methods("GET")
	r.HandleFunc("/vendors", api.addVendor).Methods("POST")
	r.HandleFunc("/audit", api.auditLog).Methods("GET")
}

func (api *ContractAPI) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"message":   "Backend server is running!",
		"timestamp": api.now().UTC().Format(time.RFC3339),
	})
}

type fileInfo struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type analysisSummary struct {
	RisksDetected int       `json:"risksDetected"`
	RiskScore     int       `json:"riskScore"`
	RiskLevel     risk.Band `json:"riskLevel"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
}

func (api *ContractAPI) uploadContract(w http.ResponseWriter, r *http.Request) {
	upload := api.config.Load().Upload
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+formOverhead)
	file, header, err := r.FormFile("contract")
	if err != nil {
		api.metrics.ObserveUpload(false)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, tooLargeMessage(upload))
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if !upload.Allowed(header.Filename) {
		api.metrics.ObserveUpload(false)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Only %s files are allowed", strings.Join(upload.AllowedExtensions, ", ")))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize+1))
	if err != nil {
		api.metrics.ObserveUpload(false)
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > upload.MaxFileSize {
		api.metrics.ObserveUpload(false)
		writeError(w, http.StatusBadRequest, tooLargeMessage(upload))
		return
	}
	api.metrics.ObserveUpload(true)

	res, err := api.worker.Upload(r.Context(), workers.Upload{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
		MaxExtracted: upload.MaxExtractedSize(),
	})
	if err != nil {
		log.Printf("Upload/analysis error: %v", err)
		writeError(w, http.StatusInternalServerError, "Upload or analysis failed")
		return
	}

	summary := analysisSummary{Status: string(res.Contract.Status), RiskLevel: risk.BandLow}
	message := "Contract uploaded and analyzed successfully!"
	if res.AnalysisErr != nil {
		summary.Error = res.AnalysisErr.Error()
		message = "Contract uploaded but analysis failed"
	} else {
		summary.RisksDetected = res.Report.RiskCount
		summary.RiskScore = res.Report.RiskScore
		summary.RiskLevel = risk.BandFor(res.Report.RiskScore)
	}

	api.audit("upload", map[string]interface{}{"filename": header.Filename, "size": len(data)}, summary, nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": message,
		"file": fileInfo{
			ID:           res.Contract.ID,
			Filename:     res.Contract.Filename,
			OriginalName: res.Contract.OriginalName,
			Size:         res.Contract.FileSize,
			UploadedAt:   res.Contract.UploadDate,
		},
		"analysis": summary,
	})
}

func tooLargeMessage(upload config.UploadConfig) string {
	return fmt.Sprintf("File exceeds the %d MB limit", upload.MaxFileSize/(1024*1024))
}

type contractRow struct {
	store.Contract
	RiskLevel risk.Band `json:"risk_level"`
}

func (api *ContractAPI) listContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := api.worker.Contracts(r.Context())
	if err != nil {
		api.internalError(w, "Failed to retrieve contracts", err)
		return
	}
	rows := make([]contractRow, 0, len(contracts))
	for _, c := range contracts {
		rows = append(rows, contractRow{Contract: c, RiskLevel: risk.BandFor(c.RiskScore)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"count":     len(rows),
		"contracts": rows,
	})
}

func (api *ContractAPI) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	analysis, err := api.worker.Analysis(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Contract not found")
		return
	}
	if err != nil {
		api.internalError(w, "Failed to retrieve analysis", err)
		return
	}
	c := analysis.Contract
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"contract": map[string]interface{}{
			"id":         c.ID,
			"filename":   c.OriginalName,
			"uploadDate": c.UploadDate,
			"status":     c.Status,
			"riskScore":  c.RiskScore,
			"riskLevel":  risk.BandFor(c.RiskScore),
			"wordCount":  c.WordCount,
		},
		"risks":     analysis.Risks,
		"riskCount": len(analysis.Risks),
	})
}

// downloadContract streams the stored original back as an attachment.
func (api *ContractAPI) downloadContract(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	contract, rc, err := api.worker.Original(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Contract not found")
		return
	}
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Stored file not found")
		return
	}
	if err != nil {
		api.internalError(w, "Failed to open contract file", err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(contract.OriginalName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": contract.OriginalName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("Failed to stream contract %d: %v", id, err)
	}
}

func (api *ContractAPI) deleteContract(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	err := api.worker.Delete(r.Context(), id)
	api.audit("delete", map[string]int64{"id": id}, nil, err)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Contract not found")
		return
	}
	if err != nil {
		api.internalError(w, "Failed to delete contract", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("Contract %d deleted", id),
	})
}

func (api *ContractAPI) listRisks(w http.ResponseWriter, r *http.Request) {
	severity := r.URL.Query().Get("severity")
	if severity != "" && !risk.Severity(severity).Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown severity: %s", severity))
		return
	}
	risks, err := api.worker.Risks(r.Context(), severity)
	if err != nil {
		api.internalError(w, "Failed to retrieve risks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"count":  len(risks),
		"risks":  risks,
	})
}

func (api *ContractAPI) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.worker.Stats(r.Context())
	if err != nil {
		api.internalError(w, "Failed to retrieve statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "stats": stats})
}

func (api *ContractAPI) analyzeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, api.config.Load().Upload.MaxFileSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	report := api.worker.AnalyzeText(req.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"analysis":  report,
		"riskLevel": risk.BandFor(report.RiskScore),
	})
}

func (api *ContractAPI) rules(w http.ResponseWriter, r *http.Request) {
	rules := api.worker.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"count":  len(rules),
		"rules":  rules,
	})
}

func (api *ContractAPI) listVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := api.worker.Vendors(r.Context())
	if err != nil {
		api.internalError(w, "Failed to retrieve vendors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"count":   len(vendors),
		"vendors": vendors,
	})
}

func (api *ContractAPI) addVendor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RiskLevel string `json:"riskLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	vendor, err := api.worker.AddVendor(r.Context(), strings.TrimSpace(req.Name), req.RiskLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"status": "success", "vendor": vendor})
}

func (api *ContractAPI) auditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}
	entries, err := api.auditor.GetLogs(r.Context(), limit)
	if err != nil {
		api.internalError(w, "Failed to retrieve audit log", err)
		return
	}
	if entries == nil {
		entries = []audit.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"count":   len(entries),
		"entries": entries,
	})
}

func (api *ContractAPI) audit(action string, input, output interface{}, err error) {
	in, _ := json.Marshal(input)
	var out []byte
	if output != nil {
		out, _ = json.Marshal(output)
	}
	api.auditor.Log("api", action, in, out, err)
}

func (api *ContractAPI) internalError(w http.ResponseWriter, message string, err error) {
	log.Printf("%s: %v", message, err)
	writeError(w, http.StatusInternalServerError, message)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
