package provider

import "context"

// Disabled is installed when no provider credentials are configured. Every
// call fails with a non-retryable PROVIDER_ERROR, so no window is created.
type Disabled struct {
	Reason string
}

// Name implements Translator.
func (Disabled) Name() string { return "disabled" }

// Translate implements Translator.
func (d Disabled) Translate(context.Context, string, string, Options) (*Result, error) {
	msg := d.Reason
	if msg == "" {
		msg = "translation provider not configured"
	}
	return nil, NewError(KindProviderError, msg, nil)
}
