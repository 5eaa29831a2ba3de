// internal/pkg/email/types.go
package email

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message is a rendered email ready for a Sender
type Message struct {
	To       []string
	Subject  string
	Body     string // HTML
	TextBody string
}

// EmailTemplateData contains common data for all email templates
type EmailTemplateData struct {
	SiteName   string
	SiteURL    string
	SupportURL string
	UserName   string
	UserEmail  string
	Year       int
}

// OrderConfirmationData contains data for the paid-order confirmation
type OrderConfirmationData struct {
	EmailTemplateData
	OrderNumber string
	OrderDate   string
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Shipping    decimal.Decimal
	Total       decimal.Decimal
	Currency    string
	Items       []OrderItem
	OrderURL    string
}

// OrderItem is one line of the confirmation
type OrderItem struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
	IsDigital bool
}

// DigitalKeyData contains data for a delivered product key
type DigitalKeyData struct {
	EmailTemplateData
	OrderNumber string
	ProductName string
	Code        string
	LibraryURL  string
}

// GetBaseTemplateData returns common template data
func GetBaseTemplateData(siteName, siteURL, userName, userEmail string) EmailTemplateData {
	return EmailTemplateData{
		SiteName:   siteName,
		SiteURL:    siteURL,
		SupportURL: siteURL + "/support",
		UserName:   userName,
		UserEmail:  userEmail,
		Year:       time.Now().Year(),
	}
}
