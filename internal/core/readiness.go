package core

import (
	"github.com/R3E-Network/hydrogen/infrastructure/redaction"
)

// readinessRedactor strips secret-shaped substrings from diagnostic lines
// before they are attached to a Readiness Report, per spec §3's "no
// secrets" requirement on diagnostic lines (see SPEC_FULL.md §9b).
var readinessRedactor = redaction.NewRedactor(redaction.DefaultConfig())

// BuildReport assembles a ReadinessReport from the five mandated checks,
// in the mandated order (spec §4.5): system state, configuration,
// resources, subsystem-specific, dependencies. Each check function
// returns its own ok/detail pair; BuildReport formats the diagnostic line
// and redacts it.
func BuildReport(
	name string,
	system func() (bool, string),
	config func() (bool, string),
	resources func() (bool, string),
	subsystemSpecific func() (bool, string),
	deps func() (bool, string),
) ReadinessReport {
	sysOK, sysDetail := system()
	cfgOK, cfgDetail := config()
	resOK, resDetail := resources()
	subOK, subDetail := subsystemSpecific()
	depOK, depDetail := deps()

	_, sysLine := Check("system state", sysOK, sysDetail)
	_, cfgLine := Check("configuration", cfgOK, cfgDetail)
	_, resLine := Check("resources", resOK, resDetail)
	_, subLine := Check("subsystem", subOK, subDetail)
	_, depLine := Check("dependencies", depOK, depDetail)

	return ReadinessReport{
		SubsystemName: name,
		SystemOK:      sysOK,
		ConfigOK:      cfgOK,
		ResourcesOK:   resOK,
		SubsystemOK:   subOK,
		DepsOK:        depOK,
		SystemLine:    readinessRedactor.RedactString(sysLine),
		ConfigLine:    readinessRedactor.RedactString(cfgLine),
		ResourcesLine: readinessRedactor.RedactString(resLine),
		SubsystemLine: readinessRedactor.RedactString(subLine),
		DepsLine:      readinessRedactor.RedactString(depLine),
	}
}

// DependenciesReadyCheck is a ready-made dependency check usable by any
// subsystem: it reports No-Go naming the first dependency not in the
// running set, matching the scenario-2 wording in spec §8
// ("No-Go: dependency 'threads' not Running").
func DependenciesReadyCheck(deps []string, running map[string]bool) (bool, string) {
	if len(deps) == 0 {
		return true, "no declared dependencies"
	}
	for _, d := range deps {
		if !running[d] {
			return false, "dependency '" + d + "' not Running"
		}
	}
	return true, "all declared dependencies Running"
}
