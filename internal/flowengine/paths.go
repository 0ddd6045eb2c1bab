package flowengine

import (
	"net/url"
	"strings"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

const (
	DefaultListRoot    = "/opd/visits"
	DefaultLandingPath = "/"
)

// ListPath is {listRoot} plus the cross-linking query parameters.
func ListPath(root string, p flowmodel.ListParams) string {
	root = strings.TrimRight(root, "/")
	q := url.Values{}
	if p.PatientID != "" {
		q.Set("patientId", p.PatientID)
	}
	if p.ProviderID != "" {
		q.Set("providerId", p.ProviderID)
	}
	if p.AppointmentID != "" {
		q.Set("appointmentId", p.AppointmentID)
	}
	if len(q) == 0 {
		return root
	}
	return root + "?" + q.Encode()
}

// VisitPath is the canonical per-visit path {listRoot}/{visitId}.
func VisitPath(root, id string) string {
	return strings.TrimRight(root, "/") + "/" + url.PathEscape(id)
}

// ParseRoute splits a pushed path back into the selected visit and list
// filters. It is the inverse of ListPath and VisitPath. Paths outside root
// select nothing.
func ParseRoute(root, path string) (string, flowmodel.ListParams) {
	root = strings.TrimRight(root, "/")
	var params flowmodel.ListParams
	raw, query, _ := strings.Cut(path, "?")
	if raw != root && !strings.HasPrefix(raw, root+"/") {
		return "", params
	}
	if q, err := url.ParseQuery(query); err == nil {
		params.PatientID = q.Get("patientId")
		params.ProviderID = q.Get("providerId")
		params.AppointmentID = q.Get("appointmentId")
	}
	rest := strings.TrimPrefix(raw, root)
	rest = strings.Trim(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", params
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", params
	}
	return id, params
}
