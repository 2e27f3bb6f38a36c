// SPDX-License-Identifier: MPL-2.0

package server

import (
	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/resource"
)

type (
	// ResourcesResponse is the batch discovery payload.
	ResourcesResponse struct {
		Items       []*resource.Item    `json:"items"`
		Diagnostics []DiagnosticPayload `json:"diagnostics,omitempty"`
		Incomplete  bool                `json:"incomplete,omitempty"`
	}

	// DiagnosticPayload is the wire form of a scan diagnostic.
	DiagnosticPayload struct {
		Severity string `json:"severity"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		Path     string `json:"path,omitempty"`
	}

	// AssignResponse is the wire form of an assignment result.
	AssignResponse struct {
		Success    bool          `json:"success"`
		ResourceID resource.ID   `json:"resourceId"`
		Operation  string        `json:"operation"`
		TargetPath string        `json:"targetPath,omitempty"`
		Error      *ErrorPayload `json:"error,omitempty"`
	}

	// ErrorPayload classifies a failure for the caller: the kind is the
	// assignment error taxonomy name, the path the offending location.
	ErrorPayload struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
)

func toDiagnosticPayloads(diags []discovery.Diagnostic) []DiagnosticPayload {
	if len(diags) == 0 {
		return nil
	}
	out := make([]DiagnosticPayload, 0, len(diags))
	for _, d := range diags {
		out = append(out, DiagnosticPayload{
			Severity: string(d.Severity),
			Code:     d.Code,
			Message:  d.Message,
			Path:     d.Path,
		})
	}
	return out
}

func toAssignResponse(res assign.Result) AssignResponse {
	out := AssignResponse{
		Success:    res.Success,
		ResourceID: res.ResourceID,
		Operation:  string(res.Operation),
		TargetPath: res.TargetPath,
	}
	if res.Err != nil {
		out.Error = &ErrorPayload{Kind: assign.Kind(res.Err), Message: res.Err.Error()}
	}
	return out
}
