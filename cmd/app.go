package cmd

import (
	"context"
	"net/http"

	"github.com/JakeFAU/upc-citation-tracker/internal/app"
)

// container adapts *app.App to the App interface.
type container struct {
	*app.App
}

func (c container) Runner(withSource bool) Runner {
	return c.Pipeline(withSource)
}

func (c container) Publisher(ctx context.Context, dryRun bool) (Publisher, error) {
	p, err := c.App.Publisher(ctx, dryRun)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c container) Handler() http.Handler {
	return c.Server().Handler()
}
