package runstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
)

func key(task, domain, lang, prompt string) schemas.GroupKey {
	return schemas.GroupKey{TaskID: task, Domain: domain, Language: lang, PromptType: prompt}
}

func scannedRun(k schemas.GroupKey, model string, n int, findings ...schemas.Finding) schemas.Run {
	return schemas.Run{Key: k, Model: model, RunNumber: n, Status: schemas.RunScanned, Findings: findings}
}

func finding(rule, file string, line int, sev schemas.Severity) schemas.Finding {
	return schemas.Finding{Scanner: "bandit", RuleID: rule, Severity: sev, FilePath: file, LineNumber: line, EndLine: line}
}

// -- Index --

func TestNewIndex_OrdersKeysAndRuns(t *testing.T) {
	webNaive := key("WEB_001", "web_api", "python", "naive")
	aimlNaive := key("AIML_002", "aiml_ds", "python", "naive")
	aimlAware := key("AIML_002", "aiml_ds", "python", "security_aware")

	idx, err := NewIndex([]schemas.Run{
		scannedRun(webNaive, "gemini", 2),
		scannedRun(aimlAware, "gemini", 1),
		scannedRun(webNaive, "gemini", 1),
		scannedRun(aimlNaive, "codellama", 1),
		scannedRun(webNaive, "codellama", 3),
	})
	require.NoError(t, err)

	assert.Equal(t, []schemas.GroupKey{aimlNaive, aimlAware, webNaive}, idx.Keys())
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 5, idx.RunCount())
	assert.Equal(t, []string{"codellama", "gemini"}, idx.Models())

	runs := idx.Runs(webNaive)
	require.Len(t, runs, 3)
	assert.Equal(t, "codellama", runs[0].Model)
	assert.Equal(t, 1, runs[1].RunNumber)
	assert.Equal(t, 2, runs[2].RunNumber)

	assert.Nil(t, idx.Runs(key("NOPE", "web_api", "python", "naive")))
	assert.Len(t, idx.All(), 5)
}

func TestNewIndex_ModelFilter(t *testing.T) {
	k := key("WEB_001", "web_api", "java", "standard")
	idx, err := NewIndex([]schemas.Run{
		scannedRun(k, "gemini", 1),
		scannedRun(k, "codellama", 1),
		scannedRun(k, "codellama", 2),
	}, WithModel("codellama"))
	require.NoError(t, err)

	assert.Equal(t, 2, idx.RunCount())
	assert.Equal(t, []string{"codellama"}, idx.Models())
}

func TestNewIndex_FailsFast(t *testing.T) {
	k := key("WEB_001", "web_api", "java", "standard")

	testCases := []struct {
		name string
		runs []schemas.Run
		msg  string
	}{
		{
			name: "task under two domains",
			runs: []schemas.Run{
				scannedRun(k, "", 1),
				scannedRun(key("WEB_001", "auth_crypto", "java", "naive"), "", 1),
			},
			msg: `task WEB_001 observed under domains "web_api" and "auth_crypto"`,
		},
		{
			name: "duplicate run",
			runs: []schemas.Run{scannedRun(k, "m", 1), scannedRun(k, "m", 1)},
			msg:  "duplicate run m/web_api/WEB_001/java_standard/run_1",
		},
		{
			name: "zero run number",
			runs: []schemas.Run{scannedRun(k, "", 0)},
			msg:  "has run number 0",
		},
		{
			name: "incomplete key",
			runs: []schemas.Run{scannedRun(key("WEB_001", "web_api", "", "naive"), "", 1)},
			msg:  "incomplete key",
		},
		{
			name: "unnormalized severity",
			runs: []schemas.Run{scannedRun(k, "", 1, finding("B101", "a.py", 1, "HIGH"))},
			msg:  `severity "HIGH"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIndex(tc.runs)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInconsistentRun)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestNewIndex_SameRunNumberDifferentModels(t *testing.T) {
	k := key("WEB_001", "web_api", "java", "standard")
	_, err := NewIndex([]schemas.Run{scannedRun(k, "a", 1), scannedRun(k, "b", 1)})
	assert.NoError(t, err)
}

// -- Filesystem source --

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFSSource_LoadRuns(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_naive", "run_1", ResultsFile), `{
  "timestamp": "2025-10-01T12:30:45.123456",
  "language": "python",
  "vulnerabilities": [
    {"scanner": "bandit", "rule_id": "B104", "severity": "warning", "message": "bind all",
     "cwe": "CWE-200", "file_path": "app.py", "line_number": 110, "end_line": 110}
  ],
  "vulnerability_count": 1
}`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_naive", "run_2", ResultsFile),
		`{"timestamp": "2025-10-01T12:40:00Z", "language": "python", "vulnerabilities": [], "vulnerability_count": 0}`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_naive", "run_3", ResultsFile), `{"vulnerabilities": [`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_domain_persona", "run_1", ResultsFile),
		`{"language": "python", "vulnerabilities": [{"rule_id": "B101", "severity": "HIGH"}]}`)
	// Outside the layout.
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "run_1", ResultsFile), `{}`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "pythonnaive", "run_1", ResultsFile), `{}`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_naive", "latest", ResultsFile), `{}`)
	writeFile(t, filepath.Join(root, "aiml_ds", "AIML_002", "python_naive", "run_1", "notes.txt"), `hello`)

	core, logs := observer.New(zapcore.DebugLevel)
	src := NewFSSource(root, zap.New(core))

	runs, err := src.LoadRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 4)

	idx, err := NewIndex(runs)
	require.NoError(t, err)

	naive := idx.Runs(key("AIML_002", "aiml_ds", "python", "naive"))
	require.Len(t, naive, 3)

	assert.True(t, naive[0].Parsed())
	require.Len(t, naive[0].Findings, 1)
	assert.Equal(t, schemas.SeverityWarning, naive[0].Findings[0].Severity, "severity labels are canonicalized")
	assert.Equal(t, "CWE-200", naive[0].Findings[0].CWE)
	assert.Equal(t, time.Date(2025, 10, 1, 12, 30, 45, 123456000, time.UTC), naive[0].ScannedAt)

	assert.True(t, naive[1].Parsed())
	assert.Empty(t, naive[1].Findings)

	assert.False(t, naive[2].Parsed())
	assert.Contains(t, naive[2].ParseError, "invalid JSON")

	persona := idx.Runs(key("AIML_002", "aiml_ds", "python", "domain_persona"))
	require.Len(t, persona, 1)
	assert.Equal(t, schemas.RunUnparseable, persona[0].Status)
	assert.Contains(t, persona[0].ParseError, `unknown severity "HIGH"`)

	assert.Equal(t, 3, logs.FilterMessage("Skipping results file outside the expected layout").Len())
	assert.Equal(t, 2, logs.FilterMessage("Run results could not be parsed").Len())
	summary := logs.FilterMessage("Loaded runs from filesystem").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].ContextMap()["unparseable"])
}

func TestFSSource_ModelLayout(t *testing.T) {
	root := t.TempDir()
	k := key("WEB_003", "web_api", "typescript", "security_aware")

	_, err := WriteRunDocument(RunDir(root, "gemini-2.5-pro", k, 2), "typescript",
		[]schemas.Finding{finding("detect-child-process", "src/server.ts", 40, schemas.SeverityError)},
		time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = WriteRunDocument(RunDir(root, "gemini-2.5-pro", k, 1), "typescript", nil, time.Now())
	require.NoError(t, err)

	runs, err := NewFSSource(root, zap.NewNop()).LoadRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	idx, err := NewIndex(runs)
	require.NoError(t, err)
	got := idx.Runs(k)
	require.Len(t, got, 2)
	assert.Equal(t, "gemini-2.5-pro", got[0].Model)
	assert.Equal(t, 1, got[0].RunNumber)
	assert.Empty(t, got[0].Findings)
	assert.True(t, got[0].Parsed())
	require.Len(t, got[1].Findings, 1)
	assert.Equal(t, "detect-child-process", got[1].Findings[0].RuleID)
}

func TestFSSource_FailedRunDocument(t *testing.T) {
	root := t.TempDir()
	k := key("FS_002", "file_system", "cpp", "naive")
	at := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	path, err := WriteFailedRunDocument(RunDir(root, "", k, 1), "cpp", "cppcheck output could not be parsed: invalid XML", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(RunDir(root, "", k, 1), ResultsFile), path)
	_, err = WriteRunDocument(RunDir(root, "", k, 2), "cpp",
		[]schemas.Finding{finding("nullPointer", "main.cpp", 12, schemas.SeverityError)}, at)
	require.NoError(t, err)

	runs, err := NewFSSource(root, zap.NewNop()).LoadRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	idx, err := NewIndex(runs)
	require.NoError(t, err)
	got := idx.Runs(k)
	require.Len(t, got, 2)

	failed := got[0]
	assert.False(t, failed.Parsed())
	assert.Equal(t, schemas.RunUnparseable, failed.Status)
	assert.Equal(t, "cppcheck output could not be parsed: invalid XML", failed.ParseError)
	assert.Empty(t, failed.Findings)
	assert.True(t, at.Equal(failed.ScannedAt), "the attempt time is kept")
	assert.True(t, got[1].Parsed())
}

func TestFSSource_Errors(t *testing.T) {
	_, err := NewFSSource(filepath.Join(t.TempDir(), "missing"), zap.NewNop()).LoadRuns(context.Background())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	writeFile(t, file, "x")
	_, err = NewFSSource(file, zap.NewNop()).LoadRuns(context.Background())
	assert.ErrorContains(t, err, "is not a directory")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d", "T", "python_naive", "run_1", ResultsFile), `{"vulnerabilities": []}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFSSource(root, zap.NewNop()).LoadRuns(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFromPath(t *testing.T) {
	run, ok := runFromPath(filepath.Join("file_system", "FS_004", "cpp_domain_persona", "run_5", ResultsFile))
	require.True(t, ok)
	assert.Equal(t, key("FS_004", "file_system", "cpp", "domain_persona"), run.Key)
	assert.Equal(t, 5, run.RunNumber)
	assert.Equal(t, "", run.Model)

	for _, bad := range []string{
		"results.json",
		"d/t/cpp_naive/run_0/results.json",
		"d/t/cpp_naive/run_x/results.json",
		"d/t/_naive/run_1/results.json",
		"a/b/c/d/t/cpp_naive/run_1/results.json",
	} {
		_, ok := runFromPath(bad)
		assert.False(t, ok, bad)
	}
}

func TestMemorySource(t *testing.T) {
	k := key("WEB_001", "web_api", "java", "standard")
	in := []schemas.Run{scannedRun(k, "", 1)}
	src := NewMemorySource(in)
	in[0].RunNumber = 9

	runs, err := src.LoadRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].RunNumber)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.LoadRuns(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
