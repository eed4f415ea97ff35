package gemini

// FirstText returns the first candidate's first part's text, or "" when any
// link in that chain is absent.
func (r *GenerateResponse) FirstText() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

// FirstInlineData returns the first inline binary part of the first
// candidate, or nil.
func (r *GenerateResponse) FirstInlineData() *InlineData {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.InlineData != nil {
			return p.InlineData
		}
	}
	return nil
}

// Normalize fills the Text convenience field and returns r.
func (r *GenerateResponse) Normalize() *GenerateResponse {
	if r == nil {
		return &GenerateResponse{Candidates: []Candidate{}}
	}
	if r.Candidates == nil {
		r.Candidates = []Candidate{}
	}
	r.Text = r.FirstText()
	return r
}
