package visitflow

import (
	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

// CapabilitiesFor derives the caller's permissions from its roles. The
// result is always Ready; a caller without a known role gets no access.
func CapabilitiesFor(roles []string, tenantID, facilityID string) flowmodel.Capabilities {
	caps := flowmodel.Capabilities{Ready: true, TenantID: tenantID, FacilityID: facilityID}
	for _, role := range roles {
		switch role {
		case auth.RoleAdmin:
			caps.CanAccess = true
			caps.CanStart = true
			caps.CanPayConsultation = true
			caps.CanRecordVitals = true
			caps.CanAssignDoctor = true
			caps.CanDoctorReview = true
			caps.CanDisposition = true
			caps.CanManageAllTenants = true
		case RoleRegistrar:
			caps.CanAccess = true
			caps.CanStart = true
			caps.CanPayConsultation = true
		case RoleNurse:
			caps.CanAccess = true
			caps.CanRecordVitals = true
			caps.CanAssignDoctor = true
		case RolePhysician:
			caps.CanAccess = true
			caps.CanDoctorReview = true
			caps.CanDisposition = true
		case RoleCashier:
			caps.CanAccess = true
			caps.CanPayConsultation = true
		}
	}
	return caps
}
