package content

import (
	"context"
	"fmt"

	"github.com/pmorrell/splitboard/internal/failover"
)

// EchoFactory is an offline Factory whose providers answer every prompt
// with a canned line. It backs the preview command and tests; production
// wiring supplies a factory that builds real provider clients.
type EchoFactory struct {
	// Responses maps provider name to the canned reply. Providers not in
	// the map reply with a generic line.
	Responses map[string]string

	// Errors maps provider name to a forced failure, for exercising the
	// failover path.
	Errors map[string]error
}

// NewProvider implements Factory.
func (f *EchoFactory) NewProvider(sel failover.ModelSelection) (Provider, error) {
	if err, ok := f.Errors[sel.Provider]; ok {
		return &echoProvider{err: err}, nil
	}
	text, ok := f.Responses[sel.Provider]
	if !ok {
		text = fmt.Sprintf("CANNED REPLY FROM %s", sel.Provider)
	}
	return &echoProvider{text: text, model: sel.Model}, nil
}

type echoProvider struct {
	text  string
	model string
	err   error
}

func (p *echoProvider) Generate(_ context.Context, prompt string) (*failover.Generation, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &failover.Generation{
		Text:       p.text,
		Model:      p.model,
		TokensUsed: len(prompt) / 4, // rough token estimate, fine for a stub
	}, nil
}
