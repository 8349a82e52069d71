package payment

import (
	"fmt"
	"strings"
	"time"
)

// Wire formats.
const (
	PayDateLayout = "20060102150405"
	DayLayout     = "2006-01-02"
)

// Defaults applied to fields the client leaves out.
const (
	DefaultBankCode    = "970445"
	DefaultMessageType = "1"
	DefaultAddValue    = `{"payMethod":"01","payMethodMMS":1}`
)

// Request is a payment submission. It is also the queue message body.
type Request struct {
	TokenKey       string `json:"tokenKey" validate:"notblank"`
	APIID          string `json:"apiID" validate:"notblank"`
	Mobile         string `json:"mobile" validate:"omitempty,digits=10"`
	BankCode       string `json:"bankCode"`
	AccountNo      string `json:"accountNo" validate:"notblank"`
	PayDate        string `json:"payDate" validate:"notblank,digits=14,datetime=20060102150405"`
	AdditionalData string `json:"additionalData"`
	DebitAmount    *int64 `json:"debitAmount" validate:"required"` // amount authorized to be withheld
	RespCode       string `json:"respCode" validate:"notblank"`
	RespDesc       string `json:"respDesc" validate:"notblank"`
	TraceTransfer  string `json:"traceTransfer" validate:"notblank"`
	MessageType    string `json:"messageType"`
	OrderCode      string `json:"orderCode" validate:"notblank"`
	RealAmount     *int64 `json:"realAmount" validate:"required"` // amount charged after promotions
	PromotionCode  string `json:"promotionCode"`
	AddValue       string `json:"addValue"`
	CheckSum       string `json:"checkSum" validate:"notblank"`
	UserName       string `json:"userName" validate:"notblank"`
}

// NewRequest returns a Request pre-filled with defaults. Decode client JSON into it so that
// absent fields keep their defaults.
func NewRequest() Request {
	return Request{
		BankCode:    DefaultBankCode,
		MessageType: DefaultMessageType,
		AddValue:    DefaultAddValue,
	}
}

// HasPromotion reports whether a non-blank promotion code was supplied.
func (r Request) HasPromotion() bool {
	return strings.TrimSpace(r.PromotionCode) != ""
}

// PayTime parses PayDate.
func (r Request) PayTime() (time.Time, error) {
	t, err := time.Parse(PayDateLayout, r.PayDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse payDate %q: %w", r.PayDate, err)
	}
	return t, nil
}

// PayDay returns the calendar date of PayDate as yyyy-MM-dd.
func (r Request) PayDay() (string, error) {
	t, err := r.PayTime()
	if err != nil {
		return "", err
	}
	return t.Format(DayLayout), nil
}

// Int64 returns a pointer to v, for building requests in code.
func Int64(v int64) *int64 { return &v }

// Response is the outcome of a submission or of persisting one.
type Response struct {
	TokenKey string `json:"tokenKey,omitempty"` // absent when the request could not be parsed or validated
	RespCode Code   `json:"respCode"`
	Status   string `json:"status"`
	PayDate  string `json:"payDate"`
}

// NewResponse builds a Response stamped with at.
func NewResponse(tokenKey string, code Code, status string, at time.Time) Response {
	if status == "" {
		status = code.Message()
	}
	return Response{
		TokenKey: tokenKey,
		RespCode: code,
		Status:   status,
		PayDate:  at.Format(PayDateLayout),
	}
}

// OK reports whether the response carries SUCCESS.
func (r Response) OK() bool { return r.RespCode == CodeSuccess }
