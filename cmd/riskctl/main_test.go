package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/ericksa/contractrisk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAnalyze_JSON(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "msa.txt", "This agreement shall auto-renew annually.")
	b := writeFile(t, dir, "nda.txt", "Confidential information. Notice applies.")

	out, err := run(t, "analyze", "-o", "json", a, b)
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	assert.Equal(t, a, results[0].File)
	assert.Equal(t, 10, results[0].Report.RiskScore)
	assert.Equal(t, risk.BandLow, results[0].RiskLevel)

	assert.Equal(t, b, results[1].File)
	assert.Equal(t, 7, results[1].Report.RiskScore)
	assert.Equal(t, 2, results[1].Report.RiskCount)
}

func TestAnalyze_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "ok.txt", "penalty")
	bad := writeFile(t, dir, "scan.pdf", "not a pdf")
	missing := filepath.Join(dir, "missing.txt")

	out, err := run(t, "analyze", "--parallel", "2", good, bad, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 files")

	assert.Contains(t, out, good+": score 10 (low), 1 risks, 1 words")
	assert.Contains(t, out, "Penalties")
	assert.Contains(t, out, bad+": ERROR")
	assert.Contains(t, out, missing+": ERROR failed to read file")
}

func TestAnalyze_Flags(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "x")

	_, err := run(t, "analyze", "-o", "xml", path)
	assert.Error(t, err)

	_, err = run(t, "analyze", "--parallel", "0", path)
	assert.Error(t, err)

	_, err = run(t, "analyze")
	assert.Error(t, err)
}

func TestRules(t *testing.T) {
	out, err := run(t, "rules")
	require.NoError(t, err)

	var rules []risk.RuleInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &rules))
	require.Len(t, rules, risk.DefaultRules().Len())
	assert.Equal(t, risk.SeverityHigh, rules[0].Severity)
	assert.Equal(t, 10, rules[0].Weight)

	out, err = run(t, "rules", "-o", "json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "["))
}

func seedStore(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "contracts.db")
	st, err := store.Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)
	defer st.Close()

	c := risk.NewClassifier(nil)
	for _, doc := range []struct{ name, text string }{
		{"high.pdf", "unlimited liability, indemnify all claims, auto-renew, non-compete, exclusive, perpetual, penalty"},
		{"medium.pdf", "auto-renew, penalty, exclusive, confidential, governing law, notice"},
		{"low.pdf", "notice"},
	} {
		contract, err := st.AddContract(ctx, "x-"+doc.name, doc.name, 100)
		require.NoError(t, err)
		report := c.Analyze(doc.text)
		require.NoError(t, st.UpdateContractStatus(ctx, contract.ID, store.StatusAnalyzed, report.RiskScore, report.WordCount))
		require.NoError(t, st.AddRisks(ctx, contract.ID, report.Risks))
	}

	failed, err := st.AddContract(ctx, "x-scan.pdf", "scan.pdf", 100)
	require.NoError(t, err)
	require.NoError(t, st.UpdateContractStatus(ctx, failed.ID, store.StatusFailed, 0, 0))
	return dsn
}

func TestGenerateReport(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, "sqlite3", seedStore(t))
	require.NoError(t, err)
	defer st.Close()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	report, err := generateReport(ctx, st, 2, now)
	require.NoError(t, err)

	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, 4, report.Stats.ContractsAnalyzed)
	require.Len(t, report.High, 1)
	assert.Equal(t, "high.pdf", report.High[0].OriginalName)
	require.Len(t, report.Medium, 1)
	assert.Equal(t, "medium.pdf", report.Medium[0].OriginalName)
	require.Len(t, report.Low, 1)
	require.Len(t, report.Unscored, 1)
	assert.Equal(t, "scan.pdf", report.Unscored[0].OriginalName)
	assert.Len(t, report.TopRisks, 2)
}

func TestReportCommand(t *testing.T) {
	dsn := seedStore(t)

	out, err := run(t, "report", "--driver", "sqlite3", "--dsn", dsn)
	require.NoError(t, err)
	assert.Contains(t, out, "CONTRACT RISK REPORT")
	assert.Contains(t, out, "HIGH RISK (1)")
	assert.Contains(t, out, "NOT SCORED (1)")

	out, err = run(t, "report", "--driver", "sqlite3", "--dsn", dsn, "-o", "json")
	require.NoError(t, err)
	var report RiskReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Medium, 1)

	md := filepath.Join(t.TempDir(), "report.md")
	out, err = run(t, "report", "--driver", "sqlite3", "--dsn", dsn, "-o", md)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written to: "+md)

	data, err := os.ReadFile(md)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Contract Risk Report")
	assert.Contains(t, string(data), "## High Risk (1)")
	assert.Contains(t, string(data), "| Auto-Renewal | high | 2 |")
}
