package flowmodel

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
)

// ListParams filters the visit list.
type ListParams struct {
	Stage         Stage  `json:"stage,omitempty" yaml:"stage,omitempty"`
	PatientID     string `json:"patientId,omitempty" yaml:"patientId,omitempty"`
	ProviderID    string `json:"providerId,omitempty" yaml:"providerId,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty" yaml:"appointmentId,omitempty"`
	Query         string `json:"q,omitempty" yaml:"q,omitempty"`
	Limit         int    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// Values encodes the non-empty filters as query parameters.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Stage != "" {
		v.Set("stage", string(p.Stage))
	}
	if p.PatientID != "" {
		v.Set("patientId", p.PatientID)
	}
	if p.ProviderID != "" {
		v.Set("providerId", p.ProviderID)
	}
	if p.AppointmentID != "" {
		v.Set("appointmentId", p.AppointmentID)
	}
	if p.Query != "" {
		v.Set("q", p.Query)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	return v
}

// Pagination describes one page of a list response.
type Pagination struct {
	Total   int  `json:"total" yaml:"total"`
	Limit   int  `json:"limit" yaml:"limit"`
	Offset  int  `json:"offset" yaml:"offset"`
	HasMore bool `json:"hasMore" yaml:"hasMore"`
}

// ListResult is a page of visits. It decodes from either
// {"items":[...],"pagination":{...}} or a bare JSON array.
type ListResult struct {
	Items      []FlowListEntry `json:"items" yaml:"items"`
	Pagination Pagination      `json:"pagination" yaml:"pagination"`
}

func (r *ListResult) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []FlowListEntry
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		r.Items = items
		r.Pagination = Pagination{Total: len(items), Limit: len(items)}
		return nil
	}
	type envelope ListResult
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	*r = ListResult(env)
	return nil
}
