package recovery

import (
	"context"
	"errors"
)

// staticProvider is a canned feedback provider for tests.
type staticProvider struct {
	output string
	fail   bool
}

func (p *staticProvider) GenerateText(context.Context, string) (string, error) {
	if p.fail {
		return "", errors.New("model unavailable")
	}
	return p.output, nil
}

func (p *staticProvider) Name() string { return "static" }
