package nameparse

import "strings"

// subjectDepartments maps ERP subject codes to the department name each one
// belongs to, in lowercase, matching the normalization used for scoring.
// This table is the only domain-specific datum in the matcher (spec §4.5).
var subjectDepartments = map[string]string{
	"CS":   "computer science",
	"MAT":  "mathematics",
	"PHY":  "physics",
	"CHE":  "chemistry",
	"BIO":  "biology",
	"ENG":  "english",
	"HIS":  "history",
	"ECO":  "economics",
	"POL":  "political science",
	"PSY":  "psychology",
	"SOC":  "sociology",
	"PHI":  "philosophy",
	"ART":  "art",
	"MUS":  "music",
	"KIN":  "kinesiology",
	"EE":   "electrical engineering",
	"ME":   "mechanical engineering",
	"CE":   "civil engineering",
	"ACC":  "accounting",
	"FIN":  "finance",
	"MGT":  "management",
	"MKT":  "marketing",
	"COM":  "communication",
	"ANT":  "anthropology",
	"GEO":  "geography",
	"STA":  "statistics",
}

// DepartmentFor returns the known department name for a subject code, and
// whether the code was recognized.
func DepartmentFor(subjectCode string) (string, bool) {
	dept, ok := subjectDepartments[strings.ToUpper(subjectCode)]
	return dept, ok
}

// departmentMatches reports whether a free-text department string refers to
// the same department as subjectCode, either directly (case-insensitive
// substring) or via the abbreviation table.
func departmentMatches(subjectCode, department string) bool {
	department = strings.ToLower(strings.TrimSpace(department))
	if department == "" {
		return false
	}
	if strings.Contains(department, strings.ToLower(subjectCode)) {
		return true
	}
	dept, ok := DepartmentFor(subjectCode)
	return ok && strings.Contains(department, dept)
}
