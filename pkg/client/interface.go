// Package client defines the chat-with-image contract shared by the vision
// model backends used for landmark detection.
package client

import "context"

type VisionClient interface {
	// SimpleQuery sends prompt and a base64 image and returns the reply text
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// QueryJSON is SimpleQuery with the backend's JSON output mode enabled
	QueryJSON(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
