package normalize

import (
	"regexp"
	"strings"
)

// Rule to weakness tables, used when the scanner does not report a CWE.
var banditRuleCWE = map[string]string{
	"B101": "CWE-703", // assert_used
	"B102": "CWE-78",  // exec_used
	"B103": "CWE-732", // set_bad_file_permissions
	"B104": "CWE-200", // hardcoded_bind_all_interfaces
	"B105": "CWE-259", // hardcoded_password_string
	"B106": "CWE-259", // hardcoded_password_funcarg
	"B107": "CWE-259", // hardcoded_password_default
	"B108": "CWE-377", // hardcoded_tmp_directory
	"B110": "CWE-703", // try_except_pass
	"B112": "CWE-703", // try_except_continue
	"B113": "CWE-400", // request_without_timeout
	"B201": "CWE-215", // flask_debug_true
	"B202": "CWE-22",  // tarfile_unsafe_members
	"B301": "CWE-502", // pickle
	"B303": "CWE-327", // md5
	"B311": "CWE-330", // random
	"B324": "CWE-327", // hashlib_new_insecure_functions
	"B403": "CWE-502", // import_pickle
	"B404": "CWE-78",  // import_subprocess
	"B413": "CWE-119", // import_pycrypto
	"B603": "CWE-78",  // subprocess_without_shell_equals_true
	"B607": "CWE-78",  // start_process_with_partial_path
	"B608": "CWE-89",  // hardcoded_sql_expressions
	"B614": "CWE-94",  // pytorch_load
	"B615": "CWE-494", // huggingface_unsafe_download
}

var semgrepRuleCWE = map[string]string{
	"javascript.lang.security.audit.path-traversal.path-join-resolve-traversal.path-join-resolve-traversal":       "CWE-22",
	"javascript.lang.security.detect-child-process.detect-child-process":                                         "CWE-78",
	"javascript.express.security.audit.express-session-hardcoded-secret.express-session-hardcoded-secret":         "CWE-798",
	"javascript.express.security.audit.express-check-csurf-middleware-usage.express-check-csurf-middleware-usage": "CWE-352",
	"javascript.express.security.cors-misconfiguration.cors-misconfiguration":                                     "CWE-942",
	"javascript.lang.security.audit.detect-non-literal-regexp.detect-non-literal-regexp":                          "CWE-1333",
	"javascript.lang.security.audit.unsafe-formatstring.unsafe-formatstring":                                      "CWE-134",
	"javascript.node-crypto.security.create-de-cipher-no-iv.create-de-cipher-no-iv":                               "CWE-329",
	"javascript.node-crypto.security.gcm-no-tag-length.gcm-no-tag-length":                                         "CWE-327",
	"javascript.ajv.security.audit.ajv-allerrors-true.ajv-allerrors-true":                                         "CWE-209",
	"problem-based-packs.insecure-transport.js-node.bypass-tls-verification.bypass-tls-verification":              "CWE-295",

	"java.lang.security.audit.bad-hexa-conversion.bad-hexa-conversion":                           "CWE-704",
	"java.lang.security.audit.cbc-padding-oracle.cbc-padding-oracle":                             "CWE-327",
	"java.lang.security.audit.command-injection-process-builder.command-injection-process-builder": "CWE-78",
	"java.lang.security.audit.cookie-missing-httponly.cookie-missing-httponly":                   "CWE-1004",
	"java.lang.security.audit.cookie-missing-secure-flag.cookie-missing-secure-flag":             "CWE-614",
	"java.lang.security.audit.crypto.ecb-cipher.ecb-cipher":                                      "CWE-327",
	"java.lang.security.audit.crypto.use-of-md5.use-of-md5":                                      "CWE-327",
	"java.lang.security.audit.permissive-cors.permissive-cors":                                   "CWE-942",
	"java.servlets.security.cookie-issecure-false.cookie-issecure-false":                         "CWE-614",
	"java.spring.security.audit.spring-csrf-disabled.spring-csrf-disabled":                       "CWE-352",
	"java.spring.security.injection.tainted-file-path.tainted-file-path":                         "CWE-22",
}

var cppcheckRuleCWE = map[string]string{
	"normalCheckLevelMaxBranches": "CWE-710",
	"syntaxError":                 "CWE-710",
	"dangerousTypeCast":           "CWE-704",
	"ignoredReturnValue":          "CWE-252",
	"incorrectStringCompare":      "CWE-597",
	"uninitMemberVarPrivate":      "CWE-457",
	"uninitStructMember":          "CWE-457",
	"uninitvar":                   "CWE-457",
	"virtualDestructor":           "CWE-710",
}

var ruleTables = map[string]map[string]string{
	ScannerBandit:   banditRuleCWE,
	ScannerSemgrep:  semgrepRuleCWE,
	ScannerCppcheck: cppcheckRuleCWE,
}

// cweNumber matches "79", "CWE-79" and semgrep's "CWE-79: Improper ...".
var cweNumber = regexp.MustCompile(`^(?:CWE-?)?\s*(\d+)`)

// NormalizeCWE canonicalizes a reported weakness to "CWE-<n>". Placeholder
// values such as "none" and "nan" normalize to "".
func NormalizeCWE(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "", "NONE", "NAN", "NULL":
		return ""
	}
	if m := cweNumber.FindStringSubmatch(s); m != nil {
		return "CWE-" + m[1]
	}
	if strings.HasPrefix(s, "CWE-") {
		return s
	}
	return "CWE-" + s
}

// ResolveCWE prefers the scanner-reported weakness and falls back to the
// scanner's rule table.
func ResolveCWE(scanner, ruleID, reported string) string {
	if cwe := NormalizeCWE(reported); cwe != "" {
		return cwe
	}
	return ruleTables[scanner][ruleID]
}
