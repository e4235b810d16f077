package entity

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodEWallet        PaymentMethod = "ewallet"
	PaymentMethodQRIS           PaymentMethod = "qris"
	PaymentMethodVirtualAccount PaymentMethod = "virtual_account"
	PaymentMethodAppleIAP       PaymentMethod = "apple_iap"
	PaymentMethodGooglePlay     PaymentMethod = "google_play"
)

type Provider string

const (
	ProviderInvoice Provider = "invoice"
	ProviderApple   Provider = "apple"
	ProviderGoogle  Provider = "google"
)

func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch PaymentMethod(value) {
	case PaymentMethodCard, PaymentMethodEWallet, PaymentMethodQRIS, PaymentMethodVirtualAccount,
		PaymentMethodAppleIAP, PaymentMethodGooglePlay:
		return PaymentMethod(value), true
	default:
		return "", false
	}
}

// Provider returns the payment ecosystem that settles orders paid with this method.
func (m PaymentMethod) Provider() Provider {
	switch m {
	case PaymentMethodAppleIAP:
		return ProviderApple
	case PaymentMethodGooglePlay:
		return ProviderGoogle
	default:
		return ProviderInvoice
	}
}

// Methods returns the payment methods settled by the provider.
func (p Provider) Methods() []PaymentMethod {
	switch p {
	case ProviderApple:
		return []PaymentMethod{PaymentMethodAppleIAP}
	case ProviderGoogle:
		return []PaymentMethod{PaymentMethodGooglePlay}
	case ProviderInvoice:
		return []PaymentMethod{PaymentMethodCard, PaymentMethodEWallet, PaymentMethodQRIS, PaymentMethodVirtualAccount}
	default:
		return nil
	}
}
