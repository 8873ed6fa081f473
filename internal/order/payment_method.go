package order

import (
	"errors"
	"fmt"
)

const (
	MethodCashOnDelivery = "Cash On Delivery"
	ProviderPaystack     = "Paystack"
)

var ErrUnknownPaymentMethod = errors.New("unknown payment method")

type PaymentKind int

const (
	KindCashOnDelivery PaymentKind = iota + 1
	KindGateway
)

// PaymentMethod is a closed variant: cash on delivery, or a gateway with a
// named provider.
type PaymentMethod struct {
	Kind     PaymentKind
	Provider string
}

var (
	CashOnDelivery  = PaymentMethod{Kind: KindCashOnDelivery}
	PaystackGateway = PaymentMethod{Kind: KindGateway, Provider: ProviderPaystack}
)

func ParsePaymentMethod(name string) (PaymentMethod, error) {
	switch name {
	case MethodCashOnDelivery:
		return CashOnDelivery, nil
	case ProviderPaystack:
		return PaystackGateway, nil
	default:
		return PaymentMethod{}, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, name)
	}
}

func (m PaymentMethod) String() string {
	if m.Kind == KindCashOnDelivery {
		return MethodCashOnDelivery
	}
	return m.Provider
}

func (m PaymentMethod) IsGateway() bool {
	return m.Kind == KindGateway
}
