package flowmodel

import (
	"encoding/json"
	"testing"
)

func TestListResult_DecodesEnvelope(t *testing.T) {
	data := `{"items":[{"id":"v1","stage":"WAITING_VITALS"}],"pagination":{"total":7,"limit":1,"offset":2,"hasMore":true}}`
	var r ListResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.Items) != 1 || r.Items[0].ID != "v1" {
		t.Fatalf("unexpected items: %+v", r.Items)
	}
	if r.Pagination.Total != 7 || !r.Pagination.HasMore {
		t.Errorf("unexpected pagination: %+v", r.Pagination)
	}
}

func TestListResult_DecodesBareArray(t *testing.T) {
	data := ` [{"id":"v1"},{"id":"v2"}]`
	var r ListResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(r.Items))
	}
	if r.Pagination.Total != 2 || r.Pagination.HasMore {
		t.Errorf("unexpected pagination: %+v", r.Pagination)
	}
}

func TestListParams_Values(t *testing.T) {
	p := ListParams{Stage: StageWaitingVitals, PatientID: "p1", Limit: 10}
	got := p.Values().Encode()
	want := "limit=10&patientId=p1&stage=WAITING_VITALS"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if len(ListParams{}.Values()) != 0 {
		t.Error("expected empty values for zero params")
	}
}

func TestParseStage(t *testing.T) {
	if got := ParseStage("WAITING_VITALS"); got != StageWaitingVitals {
		t.Errorf("expected WAITING_VITALS, got %s", got)
	}
	for _, raw := range []string{"", "waiting_vitals", "LOST"} {
		if got := ParseStage(raw); got != StageUnknown {
			t.Errorf("ParseStage(%q) = %s, want UNKNOWN", raw, got)
		}
	}
	if !StageDischarged.Terminal() || StageWaitingDisposition.Terminal() {
		t.Error("unexpected terminal classification")
	}
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{CanDisposition: true}
	if !c.Allows(ActionDisposition) || c.Allows(ActionRecordVitals) || c.Allows(ActionNone) {
		t.Error("unexpected Allows result")
	}
	if c.HasScope() {
		t.Error("expected no scope")
	}
	if !(Capabilities{FacilityID: "f1"}).HasScope() || !(Capabilities{CanManageAllTenants: true}).HasScope() {
		t.Error("expected scope")
	}
}

func TestAPIError(t *testing.T) {
	var body ErrorBody
	if err := json.Unmarshal([]byte(`{"error":{"code":"STAGE_CONFLICT","message":"visit moved"}}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error == nil || body.Error.Code != CodeStageConflict {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Error.Error() != "STAGE_CONFLICT: visit moved" {
		t.Errorf("unexpected message %q", body.Error.Error())
	}
}
