package subscription

import "time"

type Subscription struct {
	ID           string     `json:"id"`
	ProductID    string     `json:"productId"`
	Email        string     `json:"email"`
	SubscribedAt time.Time  `json:"subscribedAt"`
	IsNotified   bool       `json:"isNotified"`
	NotifiedAt   *time.Time `json:"notifiedAt,omitempty"`
}

// Report summarises a Notify run.
type Report struct {
	Message  string `json:"message"`
	Notified int    `json:"notified"`
	Failed   int    `json:"failed"`
}
