// Package publisher turns a collection into a paginated DDP publication.
//
// A publication composes the effective query for every subscription from
// three filter sources, in this order:
//
//  1. the query the client passed as the first subscription argument
//  2. the static filters configured for the publication
//  3. the dynamic filters computed for the subscriber
//
// Empty sources are skipped. One remaining filter is used verbatim, several
// are combined with $and. Optional hooks may then rewrite the filter list
// and the options bag.
//
// The options bag (second subscription argument) selects the mode:
//
//   - reactive unset or falsy: the matching documents are fetched once and
//     replayed to the client (snapshot mode)
//   - reactive truthy: the cursor is observed and every add, change and
//     remove is relayed until the subscription stops
//
// In both modes each added document is followed by a separate change that
// sets the marker field sub_<subscriptionId> to 1, and the number of
// matches is published to the "counts" client collection under
// sub_count_<subscriptionId>.
//
// Example:
//
//	orders := store.Collection("orders")
//	err := publisher.Register(server, publisher.CollectionSource(orders), publisher.Settings{
//		Filters: map[string]any{"status": "open"},
//	})
package publisher
