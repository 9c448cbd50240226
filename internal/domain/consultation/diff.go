package consultation

import (
	"reflect"
	"sort"
)

// diffRecords compares two versions' records field by field. Keys are
// "section.field"; a field missing on one side shows as nil there.
func diffRecords(before, after []*ClinicalRecord) map[string]FieldChange {
	b := indexRecords(before)
	a := indexRecords(after)

	sections := make(map[string]bool, len(b)+len(a))
	for sec := range b {
		sections[sec] = true
	}
	for sec := range a {
		sections[sec] = true
	}

	changes := make(map[string]FieldChange)
	for sec := range sections {
		for _, field := range fieldNames(b[sec], a[sec]) {
			bv, av := b[sec][field], a[sec][field]
			if !reflect.DeepEqual(bv, av) {
				changes[sec+"."+field] = FieldChange{Before: bv, After: av}
			}
		}
	}
	return changes
}

func indexRecords(recs []*ClinicalRecord) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(recs))
	for _, r := range recs {
		out[r.Section] = r.Data
	}
	return out
}

func fieldNames(maps ...map[string]interface{}) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}
