package normalize

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/results/providers"
)

// -- Fixtures --

const banditPayload = `{
  "errors": [],
  "results": [
    {
      "filename": "./app.py",
      "issue_severity": "MEDIUM",
      "issue_text": "Possible binding to all interfaces.",
      "line_number": 110,
      "test_id": "B104"
    },
    {
      "filename": "./routes/predict.py",
      "issue_severity": "HIGH",
      "issue_text": "Use of exec detected.",
      "line_number": 12,
      "test_id": "B102"
    },
    {
      "filename": "./config.py",
      "issue_severity": "LOW",
      "issue_text": "Standard pseudo-random generators are not suitable.",
      "line_number": 3,
      "test_id": "B999",
      "issue_cwe": {"id": 330, "link": "https://cwe.mitre.org/data/definitions/330.html"}
    }
  ]
}`

const semgrepPayload = `{
  "results": [
    {
      "check_id": "javascript.lang.security.detect-child-process.detect-child-process",
      "path": "src/server.ts",
      "start": {"line": 40, "col": 3},
      "end": {"line": 42, "col": 10},
      "extra": {
        "severity": "error",
        "message": "Detected calls to child_process.",
        "metadata": {"cwe": ["CWE-78: Improper Neutralization of Special Elements used in an OS Command"]}
      }
    },
    {
      "check_id": "java.lang.security.audit.crypto.use-of-md5.use-of-md5",
      "path": "src/main/java/Hash.java",
      "start": {"line": 7},
      "end": {"line": 7},
      "extra": {"severity": "WARNING", "message": "MD5 is broken.", "metadata": {"cwe": "CWE-327"}}
    },
    {
      "check_id": "custom.rule",
      "path": "src/util.ts",
      "start": {"line": 1},
      "end": {"line": 1},
      "extra": {"severity": "INVENTORY", "message": "inventory"}
    }
  ],
  "errors": []
}`

const cppcheckPayload = `Checking main.cpp ...
1/2 files checked 50% done
<?xml version="1.0" encoding="UTF-8"?>
<results version="2">
  <cppcheck version="2.13.0"/>
  <errors>
    <error id="uninitvar" severity="error" msg="Uninitialized variable: x" verbose="Uninitialized variable: x" cwe="457">
      <location file="main.cpp" line="14" column="9"/>
    </error>
    <error id="dangerousTypeCast" severity="warning" msg="Dangerous cast">
      <location file="util/cast.cpp" line="3" column="1"/>
      <location file="util/cast.h" line="9" column="1"/>
    </error>
    <error id="passedByValue" severity="performance" msg="Pass by reference" file0="main.cpp"/>
    <error id="normalCheckLevelMaxBranches" severity="information" msg="Limiting analysis of branches."/>
  </errors>
</results>`

func newTestProvider() *providers.InMemoryCWEProvider {
	p := providers.NewInMemoryCWEProvider()
	p.SetCVSS(map[string]float64{"CWE-200": 5.3, "CWE-78": 9.8, "CWE-457": 7.5})
	return p
}

// -- Bandit --

func TestBanditNormalize(t *testing.T) {
	b := NewBandit(Options{CWE: newTestProvider()})

	findings, err := b.Normalize([]byte(banditPayload), "python")
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, schemas.Finding{
		Scanner:    ScannerBandit,
		RuleID:     "B104",
		Severity:   schemas.SeverityWarning,
		Message:    "Possible binding to all interfaces.",
		CWE:        "CWE-200",
		CVSSScore:  findings[0].CVSSScore,
		FilePath:   "app.py",
		LineNumber: 110,
		EndLine:    110,
	}, findings[0])
	require.NotNil(t, findings[0].CVSSScore)
	assert.Equal(t, 5.3, *findings[0].CVSSScore)

	assert.Equal(t, schemas.SeverityError, findings[1].Severity)
	assert.Equal(t, "routes/predict.py", findings[1].FilePath)
	assert.Equal(t, "CWE-78", findings[1].CWE)

	assert.Equal(t, schemas.SeverityInfo, findings[2].Severity)
	assert.Equal(t, "CWE-330", findings[2].CWE, "embedded CWE fills the gap left by the rule table")
	assert.Nil(t, findings[2].CVSSScore)
}

func TestBanditNormalize_Errors(t *testing.T) {
	b := NewBandit(Options{})

	t.Run("empty payload has no findings", func(t *testing.T) {
		findings, err := b.Normalize([]byte("  \n"), "python")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("invalid JSON is a parse error", func(t *testing.T) {
		_, err := b.Normalize([]byte(`{"results": [`), "python")
		require.Error(t, err)
		var pe *ScanParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, ScannerBandit, pe.Scanner)
		assert.True(t, IsScanParseError(err))
	})

	t.Run("missing results array is a parse error", func(t *testing.T) {
		_, err := b.Normalize([]byte(`{"errors": []}`), "python")
		assert.True(t, IsScanParseError(err))
	})

	t.Run("empty results array is a clean run", func(t *testing.T) {
		findings, err := b.Normalize([]byte(`{"results": []}`), "python")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

// -- Semgrep --

func TestSemgrepNormalize(t *testing.T) {
	s := NewSemgrep(Options{CWE: newTestProvider()})

	findings, err := s.Normalize([]byte(semgrepPayload), "typescript")
	require.NoError(t, err)
	require.Len(t, findings, 3)

	assert.Equal(t, schemas.SeverityError, findings[0].Severity)
	assert.Equal(t, "CWE-78", findings[0].CWE)
	assert.Equal(t, "Detected calls to child_process.", findings[0].Message)
	assert.Equal(t, 40, findings[0].LineNumber)
	assert.Equal(t, 42, findings[0].EndLine)
	assert.Equal(t, "src/server.ts", findings[0].FilePath)
	require.NotNil(t, findings[0].CVSSScore)
	assert.Equal(t, 9.8, *findings[0].CVSSScore)

	assert.Equal(t, schemas.SeverityWarning, findings[1].Severity)
	assert.Equal(t, "CWE-327", findings[1].CWE)

	assert.Equal(t, schemas.SeverityInfo, findings[2].Severity, "unknown levels fall back to INFO")
	assert.Equal(t, "", findings[2].CWE)
}

func TestSemgrepNormalize_BareArray(t *testing.T) {
	s := NewSemgrep(Options{})
	payload := `[{
		"check_id": "java.spring.security.audit.spring-csrf-disabled.spring-csrf-disabled",
		"path": "App.java",
		"start": {"line": 5}, "end": {"line": 6},
		"message": "CSRF protection disabled",
		"metadata": {"cwe": "352"},
		"extra": {"severity": "WARNING"}
	}]`

	findings, err := s.Normalize([]byte(payload), "java")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "CSRF protection disabled", findings[0].Message)
	assert.Equal(t, "CWE-352", findings[0].CWE)
}

func TestSemgrepNormalize_Errors(t *testing.T) {
	s := NewSemgrep(Options{})

	for name, payload := range map[string]string{
		"scalar payload":  `"oops"`,
		"truncated JSON":  `{"results": [{"check_id": 1`,
		"missing results": `{"errors": []}`,
		"truncated array": `[{"check_id": "x"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Normalize([]byte(payload), "typescript")
			assert.True(t, IsScanParseError(err), "got %v", err)
		})
	}
}

// -- Cppcheck --

func TestCppcheckNormalize(t *testing.T) {
	c := NewCppcheck(Options{CWE: newTestProvider()})

	findings, err := c.Normalize([]byte(cppcheckPayload), "cpp")
	require.NoError(t, err)
	require.Len(t, findings, 3, "the error without any file is skipped")

	assert.Equal(t, "uninitvar", findings[0].RuleID)
	assert.Equal(t, schemas.SeverityError, findings[0].Severity)
	assert.Equal(t, "CWE-457", findings[0].CWE)
	assert.Equal(t, "main.cpp", findings[0].FilePath)
	assert.Equal(t, 14, findings[0].LineNumber)
	require.NotNil(t, findings[0].CVSSScore)
	assert.Equal(t, 7.5, *findings[0].CVSSScore)

	assert.Equal(t, schemas.SeverityWarning, findings[1].Severity)
	assert.Equal(t, "util/cast.cpp", findings[1].FilePath, "first location is the primary one")
	assert.Equal(t, "CWE-704", findings[1].CWE)

	assert.Equal(t, schemas.SeverityInfo, findings[2].Severity)
	assert.Equal(t, "main.cpp", findings[2].FilePath, "file0 is used when there is no location")
	assert.Equal(t, 0, findings[2].LineNumber)
}

func TestCppcheckNormalize_Errors(t *testing.T) {
	c := NewCppcheck(Options{})

	_, err := c.Normalize([]byte(`<?xml version="1.0"?><results><errors><error`), "cpp")
	assert.True(t, IsScanParseError(err))

	_, err = c.Normalize([]byte(`<?xml version="1.0"?><report/>`), "cpp")
	assert.True(t, IsScanParseError(err))

	findings, err := c.Normalize(nil, "cpp")
	require.NoError(t, err)
	assert.Empty(t, findings)
}

// -- CWE resolution --

func TestNormalizeCWE(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"79", "CWE-79"},
		{"CWE-79", "CWE-79"},
		{"cwe-79", "CWE-79"},
		{" CWE-22: Improper Limitation of a Pathname ", "CWE-22"},
		{"None", ""},
		{"nan", ""},
		{"", ""},
		{"unknown", "CWE-UNKNOWN"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, NormalizeCWE(tc.in), "NormalizeCWE(%q)", tc.in)
	}
}

func TestResolveCWE(t *testing.T) {
	assert.Equal(t, "CWE-89", ResolveCWE(ScannerBandit, "B608", ""))
	assert.Equal(t, "CWE-20", ResolveCWE(ScannerBandit, "B608", "20"), "reported CWE wins")
	assert.Equal(t, "CWE-710", ResolveCWE(ScannerCppcheck, "syntaxError", "none"))
	assert.Equal(t, "", ResolveCWE(ScannerSemgrep, "no.such.rule", ""))
	assert.Equal(t, "", ResolveCWE("trivy", "B101", ""))
}

// -- Registry --

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{})
	assert.Equal(t, []string{ScannerBandit, ScannerCppcheck, ScannerSemgrep}, r.Scanners())

	for language, scanner := range map[string]string{
		"python":     ScannerBandit,
		"Python":     ScannerBandit,
		"cpp":        ScannerCppcheck,
		"typescript": ScannerSemgrep,
		"java":       ScannerSemgrep,
	} {
		n, err := r.ForLanguage(language)
		require.NoError(t, err, language)
		assert.Equal(t, scanner, n.Scanner(), language)
	}

	_, err := r.ForLanguage("cobol")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	_, err = r.ForScanner("trivy")
	assert.ErrorIs(t, err, ErrUnknownScanner)

	findings, err := r.Normalize([]byte(banditPayload), "python")
	require.NoError(t, err)
	assert.Len(t, findings, 3)
}

func TestRelativePath(t *testing.T) {
	root := t.TempDir()

	assert.Equal(t, "unknown", relativePath(root, ""))
	assert.Equal(t, "app.py", relativePath(root, "./app.py"))
	assert.Equal(t, "pkg/mod.py", relativePath(root, "pkg/./mod.py"))
	assert.Equal(t, "sub/file.cpp", relativePath(root, filepath.Join(root, "sub", "file.cpp")))
	assert.Equal(t, "other.ts", relativePath(root, filepath.Join(filepath.Dir(root), "elsewhere", "other.ts")))
	assert.Equal(t, "x.java", relativePath("", filepath.Join(root, "x.java")))
}
