package flowmodel

// Capabilities is the caller's resolved permission and scope set.
// Ready is false until resolution has completed.
type Capabilities struct {
	Ready               bool   `json:"ready" yaml:"ready"`
	CanAccess           bool   `json:"canAccess" yaml:"canAccess"`
	CanStart            bool   `json:"canStart" yaml:"canStart"`
	CanPayConsultation  bool   `json:"canPayConsultation" yaml:"canPayConsultation"`
	CanRecordVitals     bool   `json:"canRecordVitals" yaml:"canRecordVitals"`
	CanAssignDoctor     bool   `json:"canAssignDoctor" yaml:"canAssignDoctor"`
	CanDoctorReview     bool   `json:"canDoctorReview" yaml:"canDoctorReview"`
	CanDisposition      bool   `json:"canDisposition" yaml:"canDisposition"`
	CanManageAllTenants bool   `json:"canManageAllTenants" yaml:"canManageAllTenants"`
	TenantID            string `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	FacilityID          string `json:"facilityId,omitempty" yaml:"facilityId,omitempty"`
}

// Allows returns the permission flag bound to an action kind.
func (c Capabilities) Allows(kind ActionKind) bool {
	switch kind {
	case ActionStartVisit:
		return c.CanStart
	case ActionPayConsultation:
		return c.CanPayConsultation
	case ActionRecordVitals:
		return c.CanRecordVitals
	case ActionAssignDoctor:
		return c.CanAssignDoctor
	case ActionDoctorReview:
		return c.CanDoctorReview
	case ActionDisposition:
		return c.CanDisposition
	default:
		return false
	}
}

// HasScope reports whether the caller is bound to a tenant or facility, or
// may operate across tenants.
func (c Capabilities) HasScope() bool {
	return c.CanManageAllTenants || c.TenantID != "" || c.FacilityID != ""
}
