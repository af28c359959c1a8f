package vision

import (
	"context"
	"strings"
)

const namesPrompt = `Analyze this image and identify any person names present.
- If person names are recognized, list them separated by commas, with no additional context or text.
- If no person names are recognized, respond with "No names recognized."
- Do not include any other information or context in your response.`

const noNames = "No names recognized"

const describePrompt = `The image shows consecutive frames of one video shot placed side by side, left to right.
Describe what happens in the shot in two or three sentences: the setting, the people or objects, and any visible action or on-screen text.
Respond with the description only.`

// Recognizer lists the people a model can name in a frame.
type Recognizer struct {
	backend   Backend
	maxTokens int
}

// NewRecognizer creates a Recognizer. maxTokens <= 0 uses DefaultMaxTokens.
func NewRecognizer(b Backend, maxTokens int) *Recognizer {
	return &Recognizer{backend: b, maxTokens: maxTokens}
}

// RecognizeNames returns a comma separated list of names, or "" when the
// model recognizes nobody.
func (r *Recognizer) RecognizeNames(ctx context.Context, png []byte) (string, error) {
	out, err := r.backend.Complete(ctx, Prompt{Text: namesPrompt, Image: png, MaxTokens: r.maxTokens})
	if err != nil {
		return "", err
	}
	if strings.Contains(out, noNames) {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// Describer writes a short description of a shot composite.
type Describer struct {
	backend   Backend
	maxTokens int
}

// NewDescriber creates a Describer. maxTokens <= 0 uses DefaultMaxTokens.
func NewDescriber(b Backend, maxTokens int) *Describer {
	return &Describer{backend: b, maxTokens: maxTokens}
}

// Describe returns the model's description of the composite image.
func (d *Describer) Describe(ctx context.Context, composite []byte) (string, error) {
	out, err := d.backend.Complete(ctx, Prompt{Text: describePrompt, Image: composite, MaxTokens: d.maxTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
