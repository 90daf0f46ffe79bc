package circle

import "context"

// NotificationsClient handles the notifications list and its read receipts.
type NotificationsClient struct {
	client *Client
}

// List loads the first page of notifications.
func (n *NotificationsClient) List(ctx context.Context) error {
	return n.client.paginator.LoadFirst(ctx, NotificationsQuery(), n.fetch)
}

// LoadMore fetches the next notifications page.
func (n *NotificationsClient) LoadMore(ctx context.Context) error {
	return n.client.paginator.RequestNextPage(ctx, NotificationsQuery(), n.fetch)
}

func (n *NotificationsClient) fetch(ctx context.Context, cursor string) (Page, bool, error) {
	return fetchPage(ctx, n.client, "/notification/list", cursor, entityDecoder[Notification])
}

// NewReadReceipts creates the read-receipt batcher for the notifications
// view. A successful flush marks the flushed notifications read in the
// cache and decrements the unread counter by the flushed count.
func (n *NotificationsClient) NewReadReceipts() *ReceiptBatcher {
	return NewReceiptBatcher(func(ctx context.Context, ids []string) error {
		_, err := n.client.do(ctx, "POST", "/notification/read", map[string]any{"ids": ids}, nil)
		if err != nil {
			return err
		}
		n.client.counters.DecNotifications(len(ids))

		flushed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			flushed[id] = struct{}{}
		}
		n.client.cache.MapWhere(NotificationsQuery(), func(e Entity) bool {
			_, ok := flushed[e.EntityID()]
			return ok
		}, func(e Entity) Entity {
			notif, ok := e.(Notification)
			if !ok {
				return e
			}
			notif.Read = true
			return notif
		})
		return nil
	})
}
