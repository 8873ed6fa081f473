package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

type Verification struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Currency  string
	Email     string
}

// PaystackClient verifies transactions against the Paystack REST API.
type PaystackClient struct {
	BaseURL   *url.URL
	SecretKey string
	HTTP      *http.Client
}

func NewPaystackClient(baseURL, secretKey string, timeout time.Duration) (*PaystackClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid paystack base url %q: %w", baseURL, err)
	}
	return &PaystackClient{
		BaseURL:   u,
		SecretKey: secretKey,
		HTTP:      &http.Client{Timeout: timeout},
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"` // minor unit
		Currency  string `json:"currency"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

const verifyPath = "/transaction/verify/"

func (c *PaystackClient) Verify(ctx context.Context, reference string) (Verification, error) {
	if reference == "" || reference == "." || reference == ".." {
		return Verification{}, fmt.Errorf("invalid reference %q", reference)
	}
	// The reference is one opaque path segment, so "/" and "?" stay escaped.
	u := *c.BaseURL
	u.Path = verifyPath + reference
	u.RawPath = verifyPath + url.PathEscape(reference)
	u.RawQuery = ""
	u.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("paystack verify: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verification{}, fmt.Errorf("read paystack response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("paystack verify: status %d", resp.StatusCode)
	}

	var out paystackVerifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Verification{}, fmt.Errorf("decode paystack response: %w", err)
	}
	if !out.Status {
		return Verification{}, fmt.Errorf("paystack verify: %s", out.Message)
	}

	return Verification{
		Reference: out.Data.Reference,
		Status:    out.Data.Status,
		Amount:    decimal.New(out.Data.Amount, -2),
		Currency:  out.Data.Currency,
		Email:     out.Data.Customer.Email,
	}, nil
}
