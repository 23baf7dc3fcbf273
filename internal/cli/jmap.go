package cli

import (
	"encoding/json"
	"fmt"
	"sort"
)

// JMap holds a decoded API resource without binding to a concrete type.
// Instances and jobs both carry an id, which is all the cli needs.
type JMap map[string]interface{}

// ID returns the resource id, or "" when the document has none
func (j JMap) ID() string {
	id, _ := j["id"].(string)
	return id
}

// String renders the resource as compact json
func (j JMap) String() string {
	buf, err := json.Marshal(&j)
	if err != nil {
		return ""
	}
	return string(buf)
}

// Print writes the resource to stdout, the full json document or just the id
func (j JMap) Print(jsonout bool) {
	if jsonout {
		fmt.Println(j)
	} else {
		fmt.Println(j.ID())
	}
}

// SortByID orders resources by id for stable listing output
func SortByID(js []JMap) {
	sort.Slice(js, func(i, k int) bool {
		return js[i].ID() < js[k].ID()
	})
}
