package engine

import (
	"fmt"

	"github.com/cjeanneret/PortGo/internal/diag"
)

// Identity used in diagnostic reports and version queries.
const (
	ModuleID   uint16 = 120
	VendorID   uint16 = 1000
	InstanceID uint16 = 0

	SWMajor uint8 = 1
	SWMinor uint8 = 0
	SWPatch uint8 = 0
)

// VersionInfo identifies the driver build.
type VersionInfo struct {
	VendorID uint16 `json:"vendor_id"`
	ModuleID uint16 `json:"module_id"`
	Major    uint8  `json:"sw_major"`
	Minor    uint8  `json:"sw_minor"`
	Patch    uint8  `json:"sw_patch"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("vendor %d module %d v%d.%d.%d", v.VendorID, v.ModuleID, v.Major, v.Minor, v.Patch)
}

// Version returns the constant version record. It works in any state.
func Version() VersionInfo {
	return VersionInfo{
		VendorID: VendorID,
		ModuleID: ModuleID,
		Major:    SWMajor,
		Minor:    SWMinor,
		Patch:    SWPatch,
	}
}

// GetVersionInfo fills dst with Version. A nil dst is reported as
// ErrNullOutput.
func (e *Engine) GetVersionInfo(dst *VersionInfo) error {
	if dst == nil {
		return e.fail(diag.ServiceGetVersionInfo, fmt.Errorf("get version info: %w", ErrNullOutput))
	}
	*dst = Version()
	return nil
}
