package nottorney

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ankihub/nottorney/internal/paginate"
	"github.com/ankihub/nottorney/internal/transport"
)

type wireMediaPage struct {
	Media []struct {
		Name             string   `json:"name"`
		Hash             string   `json:"hash"`
		ReferencingNotes []string `json:"referencing_notes"`
	} `json:"media"`
	Next *string `json:"next"`
}

// GetDeckMediaUpdates streams deckID's media-descriptor pages since the
// given watermark. It is a thin wrapper over the pagination driver: no
// merge, no snapshot detour, no retry beyond the transport layer
// (spec.md §4.6). The returned iterator is finite and not restartable; a
// fresh call restarts from since.
func (c *Client) GetDeckMediaUpdates(ctx context.Context, deckID uuid.UUID, since *time.Time) iter.Seq2[DeckMediaUpdateChunk, error] {
	return func(yield func(DeckMediaUpdateChunk, error) bool) {
		token, err := c.requireToken()
		if err != nil {
			yield(DeckMediaUpdateChunk{}, err)
			return
		}

		query := url.Values{"size": {"2000"}}
		if since != nil {
			query.Set("since", formatWatermark(*since))
		}
		path := fmt.Sprintf("/decks/%s/media/list/", deckID)

		fetch := func(ctx context.Context, p string, q url.Values) (paginate.Page[wireMediaPage], error) {
			resp, err := c.transport.Send(ctx, transport.Request{
				Method:      "GET",
				Target:      transport.TargetService,
				Path:        p,
				Token:       token,
				Query:       q,
				LongRunning: true,
			})
			if err != nil {
				return paginate.Page[wireMediaPage]{}, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != 200 {
				return paginate.Page[wireMediaPage]{}, transport.NewHTTPError(resp)
			}
			var wire wireMediaPage
			if err := decodeJSON(resp, &wire); err != nil {
				return paginate.Page[wireMediaPage]{}, err
			}
			next := ""
			if wire.Next != nil {
				next = *wire.Next
			}
			return paginate.Page[wireMediaPage]{Data: wire, Next: next}, nil
		}

		for page, pageErr := range paginate.Pages[wireMediaPage](ctx, path, query, fetch) {
			if pageErr != nil {
				yield(DeckMediaUpdateChunk{}, pageErr)
				return
			}

			c.metrics.observePage("deck_media")

			descriptors := make([]MediaDescriptor, 0, len(page.Media))
			for _, m := range page.Media {
				referencing := make([]uuid.UUID, 0, len(m.ReferencingNotes))
				for _, s := range m.ReferencingNotes {
					id, perr := uuid.Parse(s)
					if perr != nil {
						yield(DeckMediaUpdateChunk{}, fmt.Errorf("nottorney: parsing referencing note id %q: %w", s, perr))
						return
					}
					referencing = append(referencing, id)
				}
				descriptors = append(descriptors, MediaDescriptor{
					Name:             m.Name,
					Hash:             m.Hash,
					ReferencingNotes: referencing,
				})
			}

			if !yield(DeckMediaUpdateChunk{Media: descriptors}, nil) {
				return
			}
		}
	}
}
