// Package setting holds the storefront configuration that checkout consumes:
// delivery-date tiers, payment methods and listing page size.
package setting

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DeliveryDate is a delivery-date tier selectable at checkout.
type DeliveryDate struct {
	Name                 string          `json:"name"`
	DaysToDeliver        int             `json:"daysToDeliver"`
	ShippingPrice        decimal.Decimal `json:"shippingPrice"`
	FreeShippingMinPrice decimal.Decimal `json:"freeShippingMinPrice"`
}

type PaymentMethod struct {
	Name       string          `json:"name"`
	Commission decimal.Decimal `json:"commission"`
}

type Setting struct {
	SiteName                string          `json:"siteName"`
	SiteURL                 string          `json:"siteUrl"`
	Currency                string          `json:"currency"`
	PageSize                int             `json:"pageSize"`
	DefaultPaymentMethod    string          `json:"defaultPaymentMethod"`
	AvailablePaymentMethods []PaymentMethod `json:"availablePaymentMethods"`
	DefaultDeliveryDate     string          `json:"defaultDeliveryDate"`
	AvailableDeliveryDates  []DeliveryDate  `json:"availableDeliveryDates"`
}

// HasPaymentMethod reports whether name is one of the configured methods.
func (s Setting) HasPaymentMethod(name string) bool {
	for _, m := range s.AvailablePaymentMethods {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Provider is the getSetting collaborator. Values are stable within a request.
type Provider interface {
	Get(ctx context.Context) (Setting, error)
}

// Static serves a setting loaded once at start-up.
type Static struct {
	s Setting
}

func NewStatic(s Setting) *Static {
	return &Static{s: s}
}

func (p *Static) Get(ctx context.Context) (Setting, error) {
	return p.s, nil
}

func Defaults() Setting {
	return Setting{
		SiteName:             "ShoePedi",
		SiteURL:              "http://localhost:3000",
		Currency:             "NGN",
		PageSize:             9,
		DefaultPaymentMethod: "Paystack",
		AvailablePaymentMethods: []PaymentMethod{
			{Name: "Paystack", Commission: decimal.Zero},
			{Name: "Cash On Delivery", Commission: decimal.Zero},
		},
		DefaultDeliveryDate: "Next 5 Days",
		AvailableDeliveryDates: []DeliveryDate{
			{Name: "Tomorrow", DaysToDeliver: 1, ShippingPrice: decimal.RequireFromString("12.90"), FreeShippingMinPrice: decimal.Zero},
			{Name: "Next 3 Days", DaysToDeliver: 3, ShippingPrice: decimal.RequireFromString("6.90"), FreeShippingMinPrice: decimal.Zero},
			{Name: "Next 5 Days", DaysToDeliver: 5, ShippingPrice: decimal.RequireFromString("4.90"), FreeShippingMinPrice: decimal.RequireFromString("35")},
		},
	}
}

type fileDeliveryDate struct {
	Name                 string  `yaml:"name"`
	DaysToDeliver        int     `yaml:"daysToDeliver"`
	ShippingPrice        float64 `yaml:"shippingPrice"`
	FreeShippingMinPrice float64 `yaml:"freeShippingMinPrice"`
}

type filePaymentMethod struct {
	Name       string  `yaml:"name"`
	Commission float64 `yaml:"commission"`
}

type fileSetting struct {
	SiteName                string              `yaml:"siteName"`
	SiteURL                 string              `yaml:"siteUrl"`
	Currency                string              `yaml:"currency"`
	PageSize                int                 `yaml:"pageSize"`
	DefaultPaymentMethod    string              `yaml:"defaultPaymentMethod"`
	AvailablePaymentMethods []filePaymentMethod `yaml:"availablePaymentMethods"`
	DefaultDeliveryDate     string              `yaml:"defaultDeliveryDate"`
	AvailableDeliveryDates  []fileDeliveryDate  `yaml:"availableDeliveryDates"`
}

// Load reads a YAML settings file. Missing keys keep their defaults; an
// empty path returns Defaults.
func Load(path string) (Setting, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Setting{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Setting, error) {
	s := Defaults()

	var f fileSetting
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Setting{}, fmt.Errorf("parse settings: %w", err)
	}

	if f.SiteName != "" {
		s.SiteName = f.SiteName
	}
	if f.SiteURL != "" {
		s.SiteURL = f.SiteURL
	}
	if f.Currency != "" {
		s.Currency = f.Currency
	}
	if f.PageSize > 0 {
		s.PageSize = f.PageSize
	}
	if f.DefaultPaymentMethod != "" {
		s.DefaultPaymentMethod = f.DefaultPaymentMethod
	}
	if f.DefaultDeliveryDate != "" {
		s.DefaultDeliveryDate = f.DefaultDeliveryDate
	}
	if len(f.AvailablePaymentMethods) > 0 {
		s.AvailablePaymentMethods = make([]PaymentMethod, 0, len(f.AvailablePaymentMethods))
		for _, m := range f.AvailablePaymentMethods {
			s.AvailablePaymentMethods = append(s.AvailablePaymentMethods, PaymentMethod{
				Name:       m.Name,
				Commission: decimal.NewFromFloat(m.Commission),
			})
		}
	}
	if len(f.AvailableDeliveryDates) > 0 {
		s.AvailableDeliveryDates = make([]DeliveryDate, 0, len(f.AvailableDeliveryDates))
		for _, d := range f.AvailableDeliveryDates {
			s.AvailableDeliveryDates = append(s.AvailableDeliveryDates, DeliveryDate{
				Name:                 d.Name,
				DaysToDeliver:        d.DaysToDeliver,
				ShippingPrice:        decimal.NewFromFloat(d.ShippingPrice),
				FreeShippingMinPrice: decimal.NewFromFloat(d.FreeShippingMinPrice),
			})
		}
	}

	if err := s.validate(); err != nil {
		return Setting{}, err
	}
	return s, nil
}

func (s Setting) validate() error {
	if !s.HasPaymentMethod(s.DefaultPaymentMethod) {
		return fmt.Errorf("default payment method %q is not available", s.DefaultPaymentMethod)
	}
	for _, d := range s.AvailableDeliveryDates {
		if d.Name == "" {
			return errors.New("delivery date without a name")
		}
		if d.DaysToDeliver < 0 || d.ShippingPrice.IsNegative() || d.FreeShippingMinPrice.IsNegative() {
			return fmt.Errorf("delivery date %q has negative values", d.Name)
		}
	}
	return nil
}
