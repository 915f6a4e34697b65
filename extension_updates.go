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

type wireExtensionPage struct {
	Customizations []struct {
		AhNID string   `json:"ah_nid"`
		Tags  []string `json:"tags"`
	} `json:"customizations"`
	Next *string `json:"next"`
}

// GetDeckExtensionUpdates streams extensionID's note-customization pages
// since the given watermark. progress, if non-nil, reports the cumulative
// customization count after each page. Same pagination + watermark
// contract as GetDeckMediaUpdates; no merge, no snapshot detour.
func (c *Client) GetDeckExtensionUpdates(ctx context.Context, extensionID int64, since *time.Time, progress func(int)) iter.Seq2[DeckExtensionUpdateChunk, error] {
	return func(yield func(DeckExtensionUpdateChunk, error) bool) {
		token, err := c.requireToken()
		if err != nil {
			yield(DeckExtensionUpdateChunk{}, err)
			return
		}

		query := url.Values{"size": {"2000"}}
		if since != nil {
			query.Set("since", formatWatermark(*since))
		}
		path := fmt.Sprintf("/deck_extensions/%d/note_customizations/", extensionID)

		fetch := func(ctx context.Context, p string, q url.Values) (paginate.Page[wireExtensionPage], error) {
			resp, err := c.transport.Send(ctx, transport.Request{
				Method:      "GET",
				Target:      transport.TargetService,
				Path:        p,
				Token:       token,
				Query:       q,
				LongRunning: true,
			})
			if err != nil {
				return paginate.Page[wireExtensionPage]{}, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != 200 {
				return paginate.Page[wireExtensionPage]{}, transport.NewHTTPError(resp)
			}
			var wire wireExtensionPage
			if err := decodeJSON(resp, &wire); err != nil {
				return paginate.Page[wireExtensionPage]{}, err
			}
			next := ""
			if wire.Next != nil {
				next = *wire.Next
			}
			return paginate.Page[wireExtensionPage]{Data: wire, Next: next}, nil
		}

		seen := 0
		for page, pageErr := range paginate.Pages[wireExtensionPage](ctx, path, query, fetch) {
			if pageErr != nil {
				yield(DeckExtensionUpdateChunk{}, pageErr)
				return
			}

			c.metrics.observePage("deck_extensions")

			customizations := make([]NoteCustomization, 0, len(page.Customizations))
			for _, cust := range page.Customizations {
				id, perr := uuid.Parse(cust.AhNID)
				if perr != nil {
					yield(DeckExtensionUpdateChunk{}, fmt.Errorf("nottorney: parsing customization ah_nid %q: %w", cust.AhNID, perr))
					return
				}
				customizations = append(customizations, NoteCustomization{AhNID: id, Tags: cust.Tags})
			}

			seen += len(customizations)
			if progress != nil {
				progress(seen)
			}

			if !yield(DeckExtensionUpdateChunk{Customizations: customizations}, nil) {
				return
			}
		}
	}
}
