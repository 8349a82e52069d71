package payments

import (
	"fmt"
	"time"

	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
)

// StatusPersisted is the only status a stored payment has today.
const StatusPersisted = "PERSISTED"

// Record is a persisted payment. It is unique by (TokenKey, PayDay).
type Record struct {
	PaymentKey     string    `dynamodbav:"payment_key"` // PK: tokenKey#payDay
	TokenKey       string    `dynamodbav:"token_key"`
	PayDay         string    `dynamodbav:"pay_day"` // yyyy-MM-dd of PayDate
	APIID          string    `dynamodbav:"api_id"`
	Mobile         string    `dynamodbav:"mobile,omitempty"`
	BankCode       string    `dynamodbav:"bank_code"`
	AccountNo      string    `dynamodbav:"account_no"`
	PayDate        string    `dynamodbav:"pay_date"`
	AdditionalData string    `dynamodbav:"additional_data,omitempty"`
	DebitAmount    int64     `dynamodbav:"debit_amount"`
	RealAmount     int64     `dynamodbav:"real_amount"`
	RespCode       string    `dynamodbav:"resp_code"`
	RespDesc       string    `dynamodbav:"resp_desc"`
	TraceTransfer  string    `dynamodbav:"trace_transfer"`
	MessageType    string    `dynamodbav:"message_type"`
	OrderCode      string    `dynamodbav:"order_code"`
	PromotionCode  string    `dynamodbav:"promotion_code,omitempty"`
	AddValue       string    `dynamodbav:"add_value"`
	CheckSum       string    `dynamodbav:"check_sum"`
	UserName       string    `dynamodbav:"user_name"`
	Status         string    `dynamodbav:"status"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
}

// PaymentKey builds the DynamoDB partition key for a token on a day.
func PaymentKey(tokenKey, payDay string) string {
	return tokenKey + "#" + payDay
}

// NewRecord maps a request onto a Record. It fails when payDate does not parse or an amount is
// missing, both of which the validator rejects upstream.
func NewRecord(req payment.Request, now time.Time) (Record, error) {
	day, err := req.PayDay()
	if err != nil {
		return Record{}, err
	}
	if req.DebitAmount == nil || req.RealAmount == nil {
		return Record{}, fmt.Errorf("payment %s: missing amount", req.TokenKey)
	}
	return Record{
		PaymentKey:     PaymentKey(req.TokenKey, day),
		TokenKey:       req.TokenKey,
		PayDay:         day,
		APIID:          req.APIID,
		Mobile:         req.Mobile,
		BankCode:       req.BankCode,
		AccountNo:      req.AccountNo,
		PayDate:        req.PayDate,
		AdditionalData: req.AdditionalData,
		DebitAmount:    *req.DebitAmount,
		RealAmount:     *req.RealAmount,
		RespCode:       req.RespCode,
		RespDesc:       req.RespDesc,
		TraceTransfer:  req.TraceTransfer,
		MessageType:    req.MessageType,
		OrderCode:      req.OrderCode,
		PromotionCode:  req.PromotionCode,
		AddValue:       req.AddValue,
		CheckSum:       req.CheckSum,
		UserName:       req.UserName,
		Status:         StatusPersisted,
		CreatedAt:      now,
	}, nil
}
