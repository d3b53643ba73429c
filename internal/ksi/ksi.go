// Package ksi knows the FedRAMP 20x Key Security Indicator themes so rollup
// categories named after a KSI can be labelled in reports.
package ksi

import (
	"sort"
	"strings"
)

const prefix = "KSI-"

var themes = map[string]string{
	"CNA": "Cloud Native Architecture",
	"SVC": "Service Configuration",
	"IAM": "Identity and Access Management",
	"MLA": "Monitoring, Logging, and Auditing",
	"CMT": "Change Management",
	"PIY": "Policy and Inventory",
	"SCR": "Supply Chain Risk",
	"CED": "Cybersecurity Education",
	"RPL": "Recovery Planning",
	"INR": "Incident Response",
	"AFR": "Authorization by FedRAMP",
	"TPR": "Third-Party Information Resources",
}

// NormalizeID converts a KSI identifier into its lowercase control form,
// e.g. KSI-CNA-01 -> cna-01 and KSI-SVC-VRI -> svc-vri.
func NormalizeID(raw string) string {
	rest := strings.TrimPrefix(raw, prefix)
	parts := strings.Split(rest, "-")
	if len(parts) >= 2 {
		for i := range parts {
			parts[i] = strings.ToLower(parts[i])
		}
		return strings.Join(parts, "-")
	}
	return strings.ReplaceAll(strings.ToLower(rest), "_", "-")
}

// Theme returns the theme code and title for a category name. Categories may
// be a bare theme ("iam"), a KSI id ("KSI-IAM-01") or a normalized control id
// ("iam-01"). ok is false when no theme matches.
func Theme(category string) (code, title string, ok bool) {
	id := NormalizeID(strings.ToUpper(category))
	head, _, _ := strings.Cut(id, "-")
	code = strings.ToUpper(head)
	title, ok = themes[code]
	if !ok {
		return "", "", false
	}
	return code, title, true
}

// Title returns the theme title for category, or "" when unknown.
func Title(category string) string {
	_, t, _ := Theme(category)
	return t
}

// Codes returns every known theme code, sorted.
func Codes() []string {
	out := make([]string, 0, len(themes))
	for c := range themes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
