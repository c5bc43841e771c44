package flows

import "sort"

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login     LoginDeps
	Refresh   RefreshDeps
	Authorize AuthorizeDeps
	Revoke    RevokeDeps
}

// FieldError is flow-level input validation detail.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := "invalid input:"
	for _, k := range keys {
		msg += " " + k + " " + e.Fields[k] + ";"
	}
	return msg
}
