package tables

import "strings"

// usRegions lists USPS codes with their names, including DC and the
// inhabited territories that show up in billing addresses.
var usRegions = [...]struct{ code, name string }{
	{"AL", "Alabama"}, {"AK", "Alaska"}, {"AZ", "Arizona"}, {"AR", "Arkansas"},
	{"CA", "California"}, {"CO", "Colorado"}, {"CT", "Connecticut"}, {"DE", "Delaware"},
	{"FL", "Florida"}, {"GA", "Georgia"}, {"HI", "Hawaii"}, {"ID", "Idaho"},
	{"IL", "Illinois"}, {"IN", "Indiana"}, {"IA", "Iowa"}, {"KS", "Kansas"},
	{"KY", "Kentucky"}, {"LA", "Louisiana"}, {"ME", "Maine"}, {"MD", "Maryland"},
	{"MA", "Massachusetts"}, {"MI", "Michigan"}, {"MN", "Minnesota"}, {"MS", "Mississippi"},
	{"MO", "Missouri"}, {"MT", "Montana"}, {"NE", "Nebraska"}, {"NV", "Nevada"},
	{"NH", "New Hampshire"}, {"NJ", "New Jersey"}, {"NM", "New Mexico"}, {"NY", "New York"},
	{"NC", "North Carolina"}, {"ND", "North Dakota"}, {"OH", "Ohio"}, {"OK", "Oklahoma"},
	{"OR", "Oregon"}, {"PA", "Pennsylvania"}, {"RI", "Rhode Island"}, {"SC", "South Carolina"},
	{"SD", "South Dakota"}, {"TN", "Tennessee"}, {"TX", "Texas"}, {"UT", "Utah"},
	{"VT", "Vermont"}, {"VA", "Virginia"}, {"WA", "Washington"}, {"WV", "West Virginia"},
	{"WI", "Wisconsin"}, {"WY", "Wyoming"},
	{"DC", "District of Columbia"}, {"PR", "Puerto Rico"}, {"GU", "Guam"},
	{"VI", "U.S. Virgin Islands"}, {"AS", "American Samoa"}, {"MP", "Northern Mariana Islands"},
}

// usRegionCodes is keyed by regionKey of both code and name.
var usRegionCodes = func() map[string]string {
	m := make(map[string]string, 2*len(usRegions))
	for _, r := range usRegions {
		m[regionKey(r.code)] = r.code
		m[regionKey(r.name)] = r.code
	}
	return m
}()

func regionKey(s string) string {
	return NormalizeLabel(strings.ReplaceAll(s, ".", ""))
}

// NormalizeRegion returns the USPS code of a US state or territory given
// by name or code. Anything else is returned trimmed.
func NormalizeRegion(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := usRegionCodes[regionKey(s)]; ok {
		return code
	}
	return s
}

// NormalizeLabel lowercases a label and joins its words with underscores:
// "Not Checked" becomes "not_checked".
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}
