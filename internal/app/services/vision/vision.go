// Package vision estimates the nutrition content of a meal photo by calling
// a chat-completions style vision model and coercing whatever it answers into
// a structured analysis.
package vision

import (
	"context"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
)

// Analyzer turns an image into a nutrition estimate.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.Analysis, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, imageData []byte, mimeType string) (*nutrition.Analysis, error)

// AnalyzeImage calls f.
func (f AnalyzerFunc) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.Analysis, error) {
	return f(ctx, imageData, mimeType)
}
