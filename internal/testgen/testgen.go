// Package testgen renders Playwright TypeScript test skeletons and
// locator suggestions. Output is deterministic for a given input.
package testgen

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/ctagard/testops-mcp/internal/jsonutil"
)

// Test types accepted by GenerateTestCase
const (
	TestTypeUI  = "ui"
	TestTypeAPI = "api"
)

// Defaults applied when the caller leaves an argument empty
const (
	DefaultTestType = TestTypeUI
	DefaultUserType = "valid"
)

// HTTPMethods lists the methods GenerateAPITest supports
var HTTPMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("testgen").Funcs(funcMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

func funcMap() template.FuncMap {
	return template.FuncMap{
		"lower":  strings.ToLower,
		"jsstr":  jsString,
		"indent": indentTail,
	}
}

// jsString escapes s for a single-quoted TypeScript string literal
func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}

// indentTail indents every line but the first by n spaces
func indentTail(n int, s string) string {
	pad := strings.Repeat(" ", n)
	return strings.ReplaceAll(s, "\n", "\n"+pad)
}

type caseData struct {
	Title   string
	DataKey string
}

type apiData struct {
	Endpoint string
	Method   string
	Body     string
}

// GenerateTestCase renders a test whose title is "should <scenario>" in
// lower case and which loads the "<userType>User" test data entry.
func GenerateTestCase(scenario, testType, userType string) (string, error) {
	if testType == "" {
		testType = DefaultTestType
	}
	if userType == "" {
		userType = DefaultUserType
	}

	var name string
	switch testType {
	case TestTypeUI:
		name = "ui.spec.ts.tmpl"
	case TestTypeAPI:
		name = "api-scenario.spec.ts.tmpl"
	default:
		return "", fmt.Errorf("unsupported test type %q", testType)
	}

	return render(name, caseData{
		Title:   "should " + strings.ToLower(scenario),
		DataKey: userType + "User",
	})
}

// GenerateAPITest renders a request test for endpoint. testData becomes
// the request payload; nil renders as an empty object.
func GenerateAPITest(endpoint, method string, testData interface{}) (string, error) {
	method = strings.ToUpper(method)
	if !supportedMethod(method) {
		return "", fmt.Errorf("unsupported HTTP method %q", method)
	}
	if testData == nil {
		testData = map[string]interface{}{}
	}
	body, err := jsonutil.Pretty(testData)
	if err != nil {
		return "", fmt.Errorf("failed to encode test data: %w", err)
	}
	return render("api.spec.ts.tmpl", apiData{Endpoint: endpoint, Method: method, Body: body})
}

// SuggestLocators returns alternative Playwright locators for a selector
// that no longer matches: text, data-testid, css and xpath, in that order.
// Each is a valid single-quoted TypeScript expression whatever brokenLocator
// contains.
func SuggestLocators(brokenLocator string) []string {
	cssValue := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(brokenLocator)
	return []string{
		locator("text=" + brokenLocator),
		locator(`[data-testid="` + cssValue + `"]`),
		locator("css=" + brokenLocator),
		locator("xpath=//*[contains(text()," + xpathLiteral(brokenLocator) + ")]"),
	}
}

func locator(selector string) string {
	return "page.locator('" + jsString(selector) + "')"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(parts, `, '"', `) + ")"
}

func supportedMethod(method string) bool {
	for _, m := range HTTPMethods {
		if m == method {
			return true
		}
	}
	return false
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
