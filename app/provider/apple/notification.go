package apple

const (
	TypeSubscribed             = "SUBSCRIBED"
	TypeDidRenew               = "DID_RENEW"
	TypeDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	TypeTest                   = "TEST"

	SubtypeInitialBuy        = "INITIAL_BUY"
	SubtypeResubscribe       = "RESUBSCRIBE"
	SubtypeAutoRenewDisabled = "AUTO_RENEW_DISABLED"
	SubtypeAutoRenewEnabled  = "AUTO_RENEW_ENABLED"
)

type webhookBody struct {
	SignedPayload string `json:"signedPayload"`
}

// Notification is the decoded App Store Server Notifications V2 payload.
type Notification struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype,omitempty"`
	NotificationUUID string           `json:"notificationUUID"`
	Data             NotificationData `json:"data"`
	Version          string           `json:"version"`
	SignedDate       int64            `json:"signedDate"`
}

type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId,omitempty"`
	BundleID              string `json:"bundleId,omitempty"`
	BundleVersion         string `json:"bundleVersion,omitempty"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo,omitempty"`
	SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
	Status                int    `json:"status,omitempty"`
}

type Transaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	AppAccountToken       string `json:"appAccountToken,omitempty"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate,omitempty"`
	ExpiresDate           int64  `json:"expiresDate,omitempty"`
	Environment           string `json:"environment"`
}

func (n Notification) EventType() string {
	if n.Subtype == "" {
		return n.NotificationType
	}
	return n.NotificationType + "/" + n.Subtype
}
