package domain

// ReferenceInput is a typed input that has already been uploaded to object
// storage. Raw bytes never travel through a GenerationRequest.
type ReferenceInput struct {
	Kind       InputKind `json:"kind"`
	StorageRef string    `json:"storage_ref"`
}

// GenerationRequest is the caller-supplied description of a generation. It is
// frozen once accepted by the orchestrator.
type GenerationRequest struct {
	OwnerID        string           `json:"owner_id"`
	ModelID        string           `json:"model_id"`
	GenerationType GenerationType   `json:"generation_type"`
	ProjectID      string           `json:"project_id,omitempty"`
	Prompt         string           `json:"prompt,omitempty"`
	NegativePrompt string           `json:"negative_prompt,omitempty"`
	Inputs         []ReferenceInput `json:"inputs,omitempty"`
	Parameters     map[string]any   `json:"parameters,omitempty"`
}

// Input returns the first reference input of the given kind.
func (r GenerationRequest) Input(kind InputKind) (ReferenceInput, bool) {
	for _, in := range r.Inputs {
		if in.Kind == kind {
			return in, true
		}
	}
	return ReferenceInput{}, false
}

// Clone returns a deep copy of the request.
func (r GenerationRequest) Clone() GenerationRequest {
	out := r
	out.Inputs = append([]ReferenceInput(nil), r.Inputs...)
	out.Parameters = cloneMap(r.Parameters)
	return out
}
