package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/urfave/cli/v3"
)

// searchItem is the common shape of non-track results.
type searchItem struct {
	ID    json.Number `json:"id"`
	UUID  string      `json:"uuid"`
	Title string      `json:"title"`
	Name  string      `json:"name"`
}

func (i searchItem) label() string {
	name := i.Title
	if name == "" {
		name = i.Name
	}
	id := i.ID.String()
	if id == "" {
		id = i.UUID
	}
	return fmt.Sprintf("%s [%s]", name, id)
}

// Search queries Tidal and prints the requested categories in order.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}

	svc, err := r.resolver(ctx)
	if err != nil {
		return err
	}

	result, err := svc.Search(ctx, query, int(cmd.Int("limit")), cmd.String("types"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make(map[string][]json.RawMessage, len(result.Categories))
		for _, c := range result.Categories {
			out[c.Name] = c.Items
		}
		return r.writeJSON(out, true)
	}

	if len(result.Categories) == 0 {
		return r.writePlain("%s\n", r.styles.Warn("No results for "+query))
	}

	for _, c := range result.Categories {
		r.writePlainHeader(fmt.Sprintf("%s (%d of %d)", c.Name, len(c.Items), c.Total))

		for i, raw := range c.Items {
			line, err := searchLine(c.Name, raw)
			if err != nil {
				r.logger.Warn("skipping undecodable result", "category", c.Name, "error", err)
				continue
			}
			r.writePlain("%2d. %s\n", i+1, line)
		}
	}
	return nil
}

func searchLine(category string, raw json.RawMessage) (string, error) {
	if category == services.TypeTracks {
		var d models.TrackDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s [%s]", formatter.DescriptorLine(d), d.Key()), nil
	}

	var item searchItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return "", err
	}
	return item.label(), nil
}
