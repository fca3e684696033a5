package events

const (
	TopicCheckoutStarted   = "checkout.started"
	TopicCheckoutCompleted = "checkout.completed"
	TopicCheckoutFailed    = "checkout.failed"
	TopicPromoApplied      = "promo.applied"
	TopicPromoRejected     = "promo.rejected"
	TopicCartCleared       = "cart.cleared"
	TopicWishlistMoved     = "wishlist.moved_to_cart"
)
